// Package bot connects the documentation assistant to Discord. It routes
// inbound messages to stateless reply chains, bot-created threads, or prefix
// commands, and delivers answers back to the originating channel.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/xrplevm/docsbot/internal/config"
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

type Bot struct {
	logger        *slog.Logger
	session       *discordgo.Session
	registry      *conversation.Registry
	reconstructor *conversation.Reconstructor
	normalizer    conversation.Normalizer
	augmenter     Augmenter
	asker         Asker

	prefix     string
	command    string
	threadName string

	removeHandler func()
}

func New(
	log *slog.Logger,
	cfg config.DiscordConfig,
	registry *conversation.Registry,
	reconstructor *conversation.Reconstructor,
	normalizer conversation.Normalizer,
	augmenter Augmenter,
	asker Asker,
) (*Bot, error) {
	if log == nil {
		log = slog.Default()
	}

	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMessages |
		discordgo.IntentMessageContent |
		discordgo.IntentGuildMessageReactions

	prefix := cfg.CommandPrefix
	if prefix == "" {
		prefix = config.DefaultCommandPrefix
	}
	command := strings.ToLower(cfg.CommandName)
	if command == "" {
		command = config.DefaultCommandName
	}
	threadName := cfg.ThreadName
	if threadName == "" {
		threadName = command + " Conversation"
	}

	return &Bot{
		logger:        log.With(slog.String("service", "bot")),
		session:       session,
		registry:      registry,
		reconstructor: reconstructor,
		normalizer:    normalizer,
		augmenter:     augmenter,
		asker:         asker,
		prefix:        prefix,
		command:       command,
		threadName:    threadName,
	}, nil
}

func (b *Bot) Start(ctx context.Context) error {
	b.removeHandler = b.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if ctx.Err() != nil {
			return
		}
		b.handleMessage(ctx, s, m)
	})

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord open connection: %w", err)
	}
	if b.session.State != nil && b.session.State.User != nil {
		b.logger.Info("connected", slog.String("user", b.session.State.User.Username))
	}
	return nil
}

func (b *Bot) Stop() error {
	if b.removeHandler != nil {
		b.removeHandler()
		b.removeHandler = nil
	}
	return b.session.Close()
}

// handleMessage routes one inbound message. Order matters: stateless reply
// chains win over thread auto-handling, which wins over command parsing.
func (b *Bot) handleMessage(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	if ref := m.MessageReference; ref != nil && ref.MessageID != "" && b.registry.Known(ref.MessageID) {
		b.continueStateless(ctx, s, m, ref.MessageID)
		return
	}

	if ch := b.botThread(s, m.ChannelID); ch != nil && !strings.HasPrefix(strings.TrimSpace(m.Content), b.prefix) {
		b.handleThreadFollowup(ctx, s, m, ch)
		return
	}

	name, args, ok := parseCommand(m.Content, b.prefix)
	if !ok {
		return
	}
	switch name {
	case b.command:
		b.handleStateless(ctx, s, m, args)
	case b.command + "thread":
		b.handleThread(ctx, s, m, args, false)
	case b.command + "privatethread":
		b.handleThread(ctx, s, m, args, true)
	}
}

// botThread returns the channel when channelID is a thread this bot created,
// recognized by the configured thread name.
func (b *Bot) botThread(s *discordgo.Session, channelID string) *discordgo.Channel {
	ch := b.channel(s, channelID)
	if ch == nil || !ch.IsThread() || !strings.Contains(ch.Name, b.threadName) {
		return nil
	}
	return ch
}

// parseCommand splits "<prefix><name> arg arg" into a lowercase command name
// and its arguments. ok is false when content does not carry the prefix.
func parseCommand(content, prefix string) (name string, args []string, ok bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(content[len(prefix):])
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}
