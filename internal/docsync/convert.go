package docsync

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/xrplevm/docsbot/internal/extract"
)

var markdownSyntax = regexp.MustCompile("[#_*`~>+-]")

// Converter rewrites markdown, HTML, PDF, CSV and image files under a
// directory tree into sibling .txt files the uploader and indexer consume.
type Converter struct {
	ocr    extract.OCR
	logger *slog.Logger
}

func NewConverter(log *slog.Logger, ocr extract.OCR) *Converter {
	if log == nil {
		log = slog.Default()
	}
	return &Converter{
		ocr:    ocr,
		logger: log.With(slog.String("service", "convert")),
	}
}

// ConvertTree walks root and creates a .txt next to every convertible file
// that does not have one yet. Per-file failures are logged and skipped.
// Returns the paths of newly created .txt files.
func (c *Converter) ConvertTree(ctx context.Context, root string) ([]string, error) {
	var created []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		ext := strings.ToLower(filepath.Ext(path))
		txtPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".txt"
		if ext == ".txt" || ext == "" {
			return nil
		}
		if _, err := os.Stat(txtPath); err == nil {
			return nil
		}

		text, ok, err := c.convertFile(ctx, path, ext)
		if err != nil {
			c.logger.Warn("conversion failed", slog.String("path", path), slog.Any("error", err))
			return nil
		}
		if !ok || strings.TrimSpace(text) == "" {
			return nil
		}
		if err := os.WriteFile(txtPath, []byte(text), 0o644); err != nil {
			c.logger.Warn("write converted file failed", slog.String("path", txtPath), slog.Any("error", err))
			return nil
		}
		c.logger.Debug("created text file", slog.String("path", txtPath))
		created = append(created, txtPath)
		return nil
	})
	return created, err
}

func (c *Converter) convertFile(ctx context.Context, path, ext string) (string, bool, error) {
	switch ext {
	case ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", false, err
		}
		return markdownSyntax.ReplaceAllString(string(data), ""), true, nil
	case ".html", ".htm":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", false, err
		}
		text, err := extract.HTMLText(string(data))
		return text, err == nil, err
	case ".csv":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", false, err
		}
		return string(data), true, nil
	case ".pdf":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", false, err
		}
		text, err := extract.PDFText(data)
		return text, err == nil, err
	case ".png", ".jpg", ".jpeg", ".gif":
		if c.ocr == nil {
			return "", false, nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", false, err
		}
		text, err := c.ocr.Text(ctx, data)
		return text, err == nil, err
	default:
		return "", false, nil
	}
}

// GatherTextFiles recursively collects all .txt files under root.
func GatherTextFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(strings.ToLower(path), ".txt") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
