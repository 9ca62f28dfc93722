package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/labstack/echo/v4"
)

// Refresher runs one docs refresh cycle. reupload forces a full re-upload of
// the corpus instead of reusing the stored vector store.
type Refresher interface {
	Run(ctx context.Context, reupload bool) error
}

// SyncHandler triggers a docs refresh over HTTP. At most one refresh runs at
// a time; overlapping requests are rejected.
type SyncHandler struct {
	refresher Refresher
	running   atomic.Bool
	logger    *slog.Logger
}

type syncPayload struct {
	Reupload bool `json:"reupload"`
}

func NewSyncHandler(log *slog.Logger, refresher Refresher) *SyncHandler {
	return &SyncHandler{
		refresher: refresher,
		logger:    log.With(slog.String("handler", "sync")),
	}
}

func (h *SyncHandler) Register(e *echo.Echo) {
	e.POST("/api/sync", h.Sync)
}

func (h *SyncHandler) Sync(c echo.Context) error {
	if h.refresher == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "sync job not available")
	}

	payload := syncPayload{Reupload: true}
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if !h.running.CompareAndSwap(false, true) {
		return echo.NewHTTPError(http.StatusConflict, "refresh already in progress")
	}

	go func() {
		defer h.running.Store(false)
		if err := h.refresher.Run(context.Background(), payload.Reupload); err != nil {
			h.logger.Error("docs refresh failed", slog.Any("error", err))
		}
	}()

	return c.JSON(http.StatusAccepted, map[string]string{
		"status": "started",
	})
}
