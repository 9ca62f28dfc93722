package bot

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/xrplevm/docsbot/internal/conversation"
)

func TestParseCommand(t *testing.T) {
	t.Parallel()

	cases := []struct {
		content string
		name    string
		args    []string
		ok      bool
	}{
		{"!askdocs what is the gas limit", "askdocs", []string{"what", "is", "the", "gas", "limit"}, true},
		{"!ASKDOCSTHREAD  spaced   args ", "askdocsthread", []string{"spaced", "args"}, true},
		{"!askdocs", "askdocs", []string{}, true},
		{"hello there", "", nil, false},
		{"!", "", nil, false},
		{"  !askdocs trimmed", "askdocs", []string{"trimmed"}, true},
	}

	for _, tc := range cases {
		name, args, ok := parseCommand(tc.content, "!")
		if ok != tc.ok || name != tc.name {
			t.Fatalf("parseCommand(%q) = (%q, %v, %v), want (%q, _, %v)", tc.content, name, args, ok, tc.name, tc.ok)
		}
		if len(args) != len(tc.args) {
			t.Fatalf("parseCommand(%q) args = %v, want %v", tc.content, args, tc.args)
		}
		for i := range args {
			if args[i] != tc.args[i] {
				t.Fatalf("parseCommand(%q) args = %v, want %v", tc.content, args, tc.args)
			}
		}
	}
}

func TestStripCitations(t *testing.T) {
	t.Parallel()

	in := "Gas is capped at 30M【4:0†source】 per block【4:1†source】."
	want := "Gas is capped at 30M per block."
	if got := stripCitations(in); got != want {
		t.Fatalf("stripCitations = %q, want %q", got, want)
	}
	if got := stripCitations("no markers here"); got != "no markers here" {
		t.Fatalf("stripCitations altered clean text: %q", got)
	}
}

type fakeSender struct {
	channelID string
	sent      *discordgo.MessageSend
	reply     *discordgo.Message
}

func (f *fakeSender) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channelID = channelID
	f.sent = data
	return f.reply, nil
}

func TestSendAnswer_Short(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{reply: &discordgo.Message{ID: "B1"}}
	reply, err := sendAnswer(sender, "chan", "orig", "short answer")
	if err != nil {
		t.Fatalf("sendAnswer error: %v", err)
	}
	if reply.ID != "B1" {
		t.Fatalf("reply id = %q, want B1", reply.ID)
	}
	if sender.sent.Content != "short answer" {
		t.Fatalf("content = %q", sender.sent.Content)
	}
	if len(sender.sent.Files) != 0 {
		t.Fatalf("short answer should not carry files")
	}
	if sender.sent.Reference == nil || sender.sent.Reference.MessageID != "orig" {
		t.Fatalf("reference = %+v, want reply to orig", sender.sent.Reference)
	}
}

func TestSendAnswer_LongBecomesAttachment(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", maxInlineAnswer+1)
	sender := &fakeSender{reply: &discordgo.Message{ID: "B1"}}
	if _, err := sendAnswer(sender, "chan", "", long); err != nil {
		t.Fatalf("sendAnswer error: %v", err)
	}
	if sender.sent.Content != attachmentNotice {
		t.Fatalf("content = %q, want the attachment notice", sender.sent.Content)
	}
	if len(sender.sent.Files) != 1 || sender.sent.Files[0].Name != "response.txt" {
		t.Fatalf("files = %+v, want one response.txt", sender.sent.Files)
	}
	data, err := io.ReadAll(sender.sent.Files[0].Reader)
	if err != nil {
		t.Fatalf("read attachment: %v", err)
	}
	if string(data) != long {
		t.Fatalf("attachment body truncated: %d bytes", len(data))
	}
	if sender.sent.Reference != nil {
		t.Fatalf("no reply target was given, reference = %+v", sender.sent.Reference)
	}
}

func TestMapMessage(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m := &discordgo.Message{
		ID:        "42",
		Content:   "hello",
		Timestamp: ts,
		Type:      discordgo.MessageTypeReply,
		Author:    &discordgo.User{ID: "u1", Bot: true},
		MessageReference: &discordgo.MessageReference{
			MessageID: "41",
		},
		Attachments: []*discordgo.MessageAttachment{
			{ID: "a1", Filename: "notes.pdf", URL: "https://cdn.example/notes.pdf", Size: 1234},
		},
	}

	got := mapMessage(m)
	if got.ID != "42" || got.Text != "hello" || !got.CreatedAt.Equal(ts) {
		t.Fatalf("mapMessage basics = %+v", got)
	}
	if !got.AuthorIsBot {
		t.Fatalf("AuthorIsBot = false, author was a bot")
	}
	if got.Kind != conversation.KindReply {
		t.Fatalf("Kind = %q, want %q", got.Kind, conversation.KindReply)
	}
	if got.ReplyToID != "41" {
		t.Fatalf("ReplyToID = %q, want 41", got.ReplyToID)
	}
	if len(got.Attachments) != 1 || got.Attachments[0].Name != "notes.pdf" || got.Attachments[0].Size != 1234 {
		t.Fatalf("attachments = %+v", got.Attachments)
	}
}

func TestMessageKind(t *testing.T) {
	t.Parallel()

	if k := messageKind(discordgo.MessageTypeDefault); k != conversation.KindPlain {
		t.Fatalf("default kind = %q", k)
	}
	if k := messageKind(discordgo.MessageTypeReply); k != conversation.KindReply {
		t.Fatalf("reply kind = %q", k)
	}
	if k := messageKind(discordgo.MessageTypeGuildMemberJoin); k != conversation.KindOther {
		t.Fatalf("join kind = %q", k)
	}
}

type fakeFetcher struct {
	messages  []*discordgo.Message
	byID      map[string]*discordgo.Message
	lastLimit int
}

func (f *fakeFetcher) ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	f.lastLimit = limit
	return f.messages, nil
}

func (f *fakeFetcher) ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	if m, ok := f.byID[messageID]; ok {
		return m, nil
	}
	return nil, discordgo.ErrStateNotFound
}

func TestChannelHistory(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		messages: []*discordgo.Message{
			{ID: "2", Content: "second", Type: discordgo.MessageTypeDefault},
			{ID: "1", Content: "first", Type: discordgo.MessageTypeDefault},
		},
		byID: map[string]*discordgo.Message{
			"1": {ID: "1", Content: "first", Type: discordgo.MessageTypeDefault},
		},
	}
	history := newChannelHistory(fetcher, "thread-1")

	recent, err := history.Recent(context.Background(), 100)
	if err != nil {
		t.Fatalf("Recent error: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "2" {
		t.Fatalf("Recent = %+v", recent)
	}
	if fetcher.lastLimit != 100 {
		t.Fatalf("limit = %d, want 100", fetcher.lastLimit)
	}

	msg, err := history.Lookup(context.Background(), "1")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if msg.Text != "first" {
		t.Fatalf("Lookup text = %q", msg.Text)
	}
	if _, err := history.Lookup(context.Background(), "missing"); err == nil {
		t.Fatalf("Lookup of missing message should fail")
	}
}
