package conversation

import (
	"context"
	"log/slog"
	"sort"
)

// FetchWindow is the hard platform-imposed cap on how much thread history a
// single fetch can see. Older messages are silently unreachable.
const FetchWindow = 100

// Reconstructor deterministically rebuilds the ordered turn list for a new
// message in a thread. It is a pure function of the thread snapshot and the
// reply-target cutoff.
type Reconstructor struct {
	normalizer Normalizer
	window     int
	logger     *slog.Logger
}

func NewReconstructor(log *slog.Logger, normalizer Normalizer) *Reconstructor {
	if log == nil {
		log = slog.Default()
	}
	return &Reconstructor{
		normalizer: normalizer,
		window:     FetchWindow,
		logger:     log.With(slog.String("service", "reconstructor")),
	}
}

// Reconstruct builds the turn list the reasoner should see for newUserPrompt
// posted in the thread behind history. origin is the originating message,
// used only to detect whether it replies to an older message in the thread.
//
// The result is never empty: the final turn is always the literal
// newUserPrompt as a user turn. All failures along the way degrade to less
// history, never to an error.
func (r *Reconstructor) Reconstruct(ctx context.Context, history History, origin Message, newUserPrompt string) []Turn {
	cutoff, hasCutoff := r.resolveCutoff(ctx, history, origin)

	msgs, err := history.Recent(ctx, r.window)
	if err != nil {
		r.logger.Error("fetch thread messages failed", slog.Any("error", err))
		msgs = nil
	}

	// Fetch order is not guaranteed ascending.
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})

	turns := make([]Turn, 0, len(msgs)+1)
	for _, msg := range msgs {
		if hasCutoff && msg.CreatedAt.After(cutoff.CreatedAt) {
			continue
		}
		if msg.Kind != KindPlain && msg.Kind != KindReply {
			continue
		}

		text, err := r.normalizer.Normalize(ctx, msg)
		if err != nil {
			r.logger.Warn("normalize message failed",
				slog.String("message_id", msg.ID),
				slog.Any("error", err))
		}
		if text == "" {
			continue
		}

		role := RoleUser
		if msg.AuthorIsBot {
			role = RoleAssistant
		}
		turns = append(turns, Turn{Role: role, Content: text})
	}

	// The literal new input, not re-derived from origin: if origin was already
	// in history its attachments were picked up above, and in the non-thread
	// path this is the only source of the user turn.
	return append(turns, Turn{Role: RoleUser, Content: newUserPrompt})
}

func (r *Reconstructor) resolveCutoff(ctx context.Context, history History, origin Message) (Message, bool) {
	if origin.ReplyToID == "" {
		return Message{}, false
	}
	target, err := history.Lookup(ctx, origin.ReplyToID)
	if err != nil {
		// Deleted target, or target outside the fetch window. Proceed as if
		// the message were not a reply.
		r.logger.Warn("could not fetch replied-to message, proceeding without cutoff",
			slog.String("reply_to_id", origin.ReplyToID),
			slog.Any("error", err))
		return Message{}, false
	}
	r.logger.Debug("reply detected, ignoring messages after cutoff",
		slog.Time("cutoff", target.CreatedAt))
	return target, true
}
