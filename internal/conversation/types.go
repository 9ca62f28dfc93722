// Package conversation rebuilds reasoner input from chat-platform state.
package conversation

import (
	"context"
	"time"
)

// Role tags one conversation turn. Roles are assigned when a turn is built,
// never inferred downstream.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one role-tagged unit of conversation text submitted to or received
// from the reasoner.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Message kind constants. Anything that is not a plain message or a reply
// (joins, pins, system notices) is excluded from reconstruction.
const (
	KindPlain = "plain"
	KindReply = "reply"
	KindOther = "other"
)

// Attachment is the platform-independent view of a message attachment.
type Attachment struct {
	ID   string
	Name string
	URL  string
	Size int64
}

// Message is the narrow view of a platform message the reconstructor needs.
// Adapters map their own message model onto it.
type Message struct {
	ID          string
	AuthorIsBot bool
	CreatedAt   time.Time
	Text        string
	Attachments []Attachment
	ReplyToID   string
	Kind        string
}

// History exposes a thread's messages. Recent returns up to limit of the most
// recent messages in no guaranteed order; Lookup fetches one message by id.
type History interface {
	Recent(ctx context.Context, limit int) ([]Message, error)
	Lookup(ctx context.Context, id string) (Message, error)
}

// Normalizer flattens a message's literal text plus all attachment-extracted
// text into one string.
type Normalizer interface {
	Normalize(ctx context.Context, msg Message) (string, error)
}
