package bot

import (
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Discord caps messages at 2000 characters; anything over this goes out as a
// file attachment instead.
const maxInlineAnswer = 1900

const (
	attachmentNotice = "The response is too long; please see the attached file:"
	emptyInputNotice = "Please provide some text or attach a file/image with text."
	genericErrorText = "There was an error processing your request. Please try again later."
)

// citationMarker matches the reasoner's inline file-search citations, which
// are meaningless to Discord readers.
var citationMarker = regexp.MustCompile(`【.*?†source】`)

func stripCitations(answer string) string {
	return citationMarker.ReplaceAllString(answer, "")
}

// messageSender is the slice of the discordgo session answer delivery needs.
type messageSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// sendAnswer delivers answer to channelID, optionally as a reply to replyTo.
// Long answers are attached as response.txt rather than truncated.
func sendAnswer(sender messageSender, channelID, replyTo, answer string) (*discordgo.Message, error) {
	send := &discordgo.MessageSend{}
	if replyTo != "" {
		send.Reference = &discordgo.MessageReference{
			ChannelID: channelID,
			MessageID: replyTo,
		}
	}

	if len(answer) > maxInlineAnswer {
		send.Content = attachmentNotice
		send.Files = []*discordgo.File{{
			Name:        "response.txt",
			ContentType: "text/plain",
			Reader:      strings.NewReader(answer),
		}}
	} else {
		send.Content = answer
	}

	return sender.ChannelMessageSendComplex(channelID, send)
}
