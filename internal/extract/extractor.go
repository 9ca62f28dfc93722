// Package extract turns message attachments into plain text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/ledongthuc/pdf"

	"github.com/xrplevm/docsbot/internal/conversation"
)

// ErrUnsupported marks attachment kinds the extractor cannot handle. Callers
// skip them with a warning instead of failing the request.
var ErrUnsupported = errors.New("unsupported attachment type")

const maxAttachmentBytes = 25 << 20

// OCR recognizes text in a raster image.
type OCR interface {
	Text(ctx context.Context, image []byte) (string, error)
}

// Extractor fetches attachment bytes and converts them to plain text by file
// kind. It is stateless; one instance serves all conversations.
type Extractor struct {
	httpClient *http.Client
	ocr        OCR
	logger     *slog.Logger
}

func NewExtractor(log *slog.Logger, httpClient *http.Client, ocr OCR) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Extractor{
		httpClient: httpClient,
		ocr:        ocr,
		logger:     log.With(slog.String("service", "extract")),
	}
}

// Text converts one attachment to plain text. Unsupported kinds return
// ErrUnsupported.
func (e *Extractor) Text(ctx context.Context, att conversation.Attachment) (string, error) {
	ext := strings.ToLower(path.Ext(att.Name))
	switch ext {
	case ".txt", ".md", ".csv":
		data, err := e.fetch(ctx, att.URL)
		if err != nil {
			return "", err
		}
		return string(data), nil
	case ".html", ".htm":
		data, err := e.fetch(ctx, att.URL)
		if err != nil {
			return "", err
		}
		return HTMLText(string(data))
	case ".pdf":
		data, err := e.fetch(ctx, att.URL)
		if err != nil {
			return "", err
		}
		return PDFText(data)
	case ".png", ".jpg", ".jpeg", ".gif":
		if e.ocr == nil {
			return "", fmt.Errorf("%s: %w", att.Name, ErrUnsupported)
		}
		data, err := e.fetch(ctx, att.URL)
		if err != nil {
			return "", err
		}
		return e.ocr.Text(ctx, data)
	default:
		return "", fmt.Errorf("%s: %w", att.Name, ErrUnsupported)
	}
}

func (e *Extractor) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch attachment: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes))
	if err != nil {
		return nil, fmt.Errorf("read attachment body: %w", err)
	}
	return data, nil
}

// PDFText extracts the text layer of a PDF document.
func PDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}

// HTMLText flattens an HTML document to markdown-shaped plain text.
func HTMLText(html string) (string, error) {
	text, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert html: %w", err)
	}
	return text, nil
}
