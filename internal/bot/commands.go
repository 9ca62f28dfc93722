package bot

import (
	"context"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/xrplevm/docsbot/internal/conversation"
)

// continueStateless resumes the reply chain rooted at the bot message the
// user replied to. A lost re-keying race is silent, never an error message.
func (b *Bot) continueStateless(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, key string) {
	prompt := b.normalize(ctx, mapMessage(m.Message))
	if prompt == "" {
		return
	}

	_, err := b.registry.Continue(ctx, key, prompt, func(ctx context.Context, turns []conversation.Turn) (string, string, error) {
		answer, err := b.asker.Ask(ctx, turns)
		if err != nil {
			return "", "", err
		}
		answer = stripCitations(answer)
		botReply, err := sendAnswer(s, m.ChannelID, m.ID, answer)
		if err != nil {
			return "", "", err
		}
		return answer, botReply.ID, nil
	})
	if err != nil {
		b.logger.Error("stateless continuation failed", slog.String("key", key), slog.Any("error", err))
		b.replyError(s, m)
	}
}

// handleStateless answers a one-off command without a thread. The answer is
// remembered under the bot reply id so a platform reply can continue it.
func (b *Bot) handleStateless(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	prompt := b.commandPrompt(ctx, m, args)
	if prompt == "" {
		_, _ = sendAnswer(s, m.ChannelID, m.ID, emptyInputNotice)
		return
	}

	turns := b.questionTurns(ctx, prompt)
	answer, err := b.asker.Ask(ctx, turns)
	if err != nil {
		b.logger.Error("assistant request failed", slog.Any("error", err))
		b.replyError(s, m)
		return
	}
	answer = stripCitations(answer)

	botReply, err := sendAnswer(s, m.ChannelID, m.ID, answer)
	if err != nil {
		b.logger.Error("send answer failed", slog.String("channel_id", m.ChannelID), slog.Any("error", err))
		return
	}
	b.registry.Remember(botReply.ID, append(turns, conversation.Turn{Role: conversation.RoleAssistant, Content: answer}))
}

// handleThread starts (or reuses) a conversation thread for the command.
func (b *Bot) handleThread(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string, private bool) {
	threadID := m.ChannelID
	if ch := b.channel(s, m.ChannelID); ch == nil || !ch.IsThread() {
		thread, err := b.startThread(s, m, private)
		if err != nil {
			b.logger.Error("create thread failed", slog.String("channel_id", m.ChannelID), slog.Any("error", err))
			_, _ = sendAnswer(s, m.ChannelID, m.ID, "Could not create a thread for the conversation.")
			return
		}
		threadID = thread.ID
	}

	prompt := b.commandPrompt(ctx, m, args)
	if prompt == "" {
		_, _ = sendAnswer(s, threadID, "", emptyInputNotice)
		return
	}
	b.answerInThread(ctx, s, threadID, prompt, mapMessage(m.Message))
}

// handleThreadFollowup answers an ordinary message inside a bot-created
// thread, replaying the thread history as context.
func (b *Bot) handleThreadFollowup(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, thread *discordgo.Channel) {
	prompt := b.normalize(ctx, mapMessage(m.Message))
	if prompt == "" {
		return
	}
	b.answerInThread(ctx, s, thread.ID, prompt, mapMessage(m.Message))
}

// answerInThread rebuilds the thread conversation, asks the assistant, and
// posts the answer back into the thread.
func (b *Bot) answerInThread(ctx context.Context, s *discordgo.Session, threadID, prompt string, origin conversation.Message) {
	history := newChannelHistory(s, threadID)
	turns := b.reconstructor.Reconstruct(ctx, history, origin, prompt)

	answer, err := b.asker.Ask(ctx, turns)
	if err != nil {
		b.logger.Error("assistant request failed", slog.String("thread_id", threadID), slog.Any("error", err))
		_, _ = sendAnswer(s, threadID, "", genericErrorText)
		return
	}
	if _, err := sendAnswer(s, threadID, "", stripCitations(answer)); err != nil {
		b.logger.Error("send answer failed", slog.String("thread_id", threadID), slog.Any("error", err))
	}
}

func (b *Bot) startThread(s *discordgo.Session, m *discordgo.MessageCreate, private bool) (*discordgo.Channel, error) {
	start := &discordgo.ThreadStart{
		Name:                b.threadName,
		AutoArchiveDuration: 60,
	}
	if private {
		// Private threads hang off the channel, not the triggering message.
		start.Name = b.threadName + " (private)"
		start.Type = discordgo.ChannelTypeGuildPrivateThread
		return s.ThreadStartComplex(m.ChannelID, start)
	}
	return s.MessageThreadStartComplex(m.ChannelID, m.ID, start)
}

// commandPrompt builds the user prompt from command arguments plus attachment
// text, dropping the command word itself.
func (b *Bot) commandPrompt(ctx context.Context, m *discordgo.MessageCreate, args []string) string {
	msg := mapMessage(m.Message)
	msg.Text = strings.Join(args, " ")
	return b.normalize(ctx, msg)
}

func (b *Bot) normalize(ctx context.Context, msg conversation.Message) string {
	text, err := b.normalizer.Normalize(ctx, msg)
	if err != nil {
		b.logger.Warn("normalize input failed", slog.String("message_id", msg.ID), slog.Any("error", err))
	}
	return text
}

// questionTurns wraps the prompt in retrieval context when a pipeline is
// configured.
func (b *Bot) questionTurns(ctx context.Context, prompt string) []conversation.Turn {
	if b.augmenter != nil {
		return b.augmenter.Augment(ctx, prompt)
	}
	return []conversation.Turn{{Role: conversation.RoleUser, Content: prompt}}
}

func (b *Bot) channel(s *discordgo.Session, channelID string) *discordgo.Channel {
	ch, err := s.State.Channel(channelID)
	if err == nil {
		return ch
	}
	ch, err = s.Channel(channelID)
	if err != nil {
		return nil
	}
	return ch
}

func (b *Bot) replyError(s *discordgo.Session, m *discordgo.MessageCreate) {
	if _, err := sendAnswer(s, m.ChannelID, m.ID, genericErrorText); err != nil {
		b.logger.Error("send error notice failed", slog.String("channel_id", m.ChannelID), slog.Any("error", err))
	}
}
