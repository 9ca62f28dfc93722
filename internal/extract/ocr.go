package extract

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// TesseractOCR recognizes image text with a local tesseract installation.
type TesseractOCR struct {
	language string
}

func NewTesseractOCR(language string) *TesseractOCR {
	if language == "" {
		language = "eng"
	}
	return &TesseractOCR{language: language}
}

func (o *TesseractOCR) Text(ctx context.Context, image []byte) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(o.language); err != nil {
		return "", fmt.Errorf("ocr language: %w", err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("ocr image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr recognize: %w", err)
	}
	return text, nil
}
