package extract

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/xrplevm/docsbot/internal/conversation"
)

// MessageNormalizer flattens a message's literal text and all
// attachment-extracted text into one string. Failures local to one attachment
// never abort the message.
type MessageNormalizer struct {
	extractor *Extractor
	logger    *slog.Logger
}

func NewMessageNormalizer(log *slog.Logger, extractor *Extractor) *MessageNormalizer {
	if log == nil {
		log = slog.Default()
	}
	return &MessageNormalizer{
		extractor: extractor,
		logger:    log.With(slog.String("service", "normalizer")),
	}
}

func (n *MessageNormalizer) Normalize(ctx context.Context, msg conversation.Message) (string, error) {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(msg.Text))

	for _, att := range msg.Attachments {
		text, err := n.extractor.Text(ctx, att)
		if err != nil {
			if errors.Is(err, ErrUnsupported) {
				n.logger.Warn("skipping unsupported attachment", slog.String("name", att.Name))
			} else {
				n.logger.Warn("attachment extraction failed",
					slog.String("name", att.Name),
					slog.Any("error", err))
			}
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		b.WriteString("\n")
		b.WriteString(text)
	}

	return strings.TrimSpace(b.String()), nil
}
