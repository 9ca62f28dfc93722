package bot

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/xrplevm/docsbot/internal/conversation"
)

// messageFetcher is the slice of the discordgo session the history adapter
// needs.
type messageFetcher interface {
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// channelHistory exposes a Discord thread's messages to the reconstructor.
type channelHistory struct {
	fetcher   messageFetcher
	channelID string
}

func newChannelHistory(fetcher messageFetcher, channelID string) *channelHistory {
	return &channelHistory{fetcher: fetcher, channelID: channelID}
}

func (h *channelHistory) Recent(ctx context.Context, limit int) ([]conversation.Message, error) {
	raw, err := h.fetcher.ChannelMessages(h.channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	messages := make([]conversation.Message, 0, len(raw))
	for _, m := range raw {
		if m == nil {
			continue
		}
		messages = append(messages, mapMessage(m))
	}
	return messages, nil
}

func (h *channelHistory) Lookup(ctx context.Context, id string) (conversation.Message, error) {
	m, err := h.fetcher.ChannelMessage(h.channelID, id, discordgo.WithContext(ctx))
	if err != nil {
		return conversation.Message{}, err
	}
	return mapMessage(m), nil
}

// mapMessage narrows a Discord message to the fields reconstruction needs.
func mapMessage(m *discordgo.Message) conversation.Message {
	msg := conversation.Message{
		ID:        m.ID,
		CreatedAt: m.Timestamp,
		Text:      m.Content,
		Kind:      messageKind(m.Type),
	}
	if m.Author != nil {
		msg.AuthorIsBot = m.Author.Bot
	}
	if m.MessageReference != nil {
		msg.ReplyToID = m.MessageReference.MessageID
	}
	for _, att := range m.Attachments {
		if att == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, conversation.Attachment{
			ID:   att.ID,
			Name: att.Filename,
			URL:  att.URL,
			Size: int64(att.Size),
		})
	}
	return msg
}

func messageKind(t discordgo.MessageType) string {
	switch t {
	case discordgo.MessageTypeDefault:
		return conversation.KindPlain
	case discordgo.MessageTypeReply:
		return conversation.KindReply
	default:
		return conversation.KindOther
	}
}
