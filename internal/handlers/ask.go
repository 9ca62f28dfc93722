package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/xrplevm/docsbot/internal/conversation"
)

// Asker produces an assistant answer for an ordered turn list.
type Asker interface {
	Ask(ctx context.Context, turns []conversation.Turn) (string, error)
}

// Augmenter wraps a user question in retrieval context turns.
type Augmenter interface {
	Augment(ctx context.Context, question string) []conversation.Turn
}

// AskHandler answers one-off documentation questions over HTTP, using the
// same retrieval-augmented path as the chat commands.
type AskHandler struct {
	asker     Asker
	augmenter Augmenter
	validate  *validator.Validate
	logger    *slog.Logger
}

type askPayload struct {
	Question string `json:"question" validate:"required,min=1"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

func NewAskHandler(log *slog.Logger, asker Asker, augmenter Augmenter) *AskHandler {
	return &AskHandler{
		asker:     asker,
		augmenter: augmenter,
		validate:  validator.New(),
		logger:    log.With(slog.String("handler", "ask")),
	}
}

func (h *AskHandler) Register(e *echo.Echo) {
	e.POST("/api/ask", h.Ask)
}

func (h *AskHandler) Ask(c echo.Context) error {
	if h.asker == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "assistant not available")
	}

	var payload askPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}

	ctx := c.Request().Context()
	turns := []conversation.Turn{{Role: conversation.RoleUser, Content: payload.Question}}
	if h.augmenter != nil {
		turns = h.augmenter.Augment(ctx, payload.Question)
	}

	answer, err := h.asker.Ask(ctx, turns)
	if err != nil {
		h.logger.Error("assistant request failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadGateway, "assistant request failed")
	}

	return c.JSON(http.StatusOK, askResponse{Answer: answer})
}
