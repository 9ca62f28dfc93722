package docsync

import (
	"strings"
	"unicode"
)

const (
	DefaultChunkTokens   = 500
	DefaultOverlapTokens = 75
)

// ChunkText splits text into chunks of roughly maxTokens whitespace-delimited
// tokens at sentence boundaries, carrying overlapTokens of trailing context
// into each following chunk.
func ChunkText(text string, maxTokens, overlapTokens int) []string {
	if maxTokens <= 0 {
		maxTokens = DefaultChunkTokens
	}
	if overlapTokens < 0 {
		overlapTokens = DefaultOverlapTokens
	}

	var chunks []string
	var buffer string
	for _, sentence := range splitSentences(text) {
		bufTokens := len(strings.Fields(buffer))
		sentTokens := len(strings.Fields(sentence))
		if buffer != "" && bufTokens+sentTokens > maxTokens {
			chunks = append(chunks, strings.TrimSpace(buffer))
			buffer = overlapTail(buffer, overlapTokens)
		}
		buffer += " " + sentence
	}
	if strings.TrimSpace(buffer) != "" {
		chunks = append(chunks, strings.TrimSpace(buffer))
	}
	return chunks
}

func overlapTail(buffer string, overlapTokens int) string {
	words := strings.Fields(buffer)
	if len(words) <= overlapTokens {
		return buffer
	}
	return strings.Join(words[len(words)-overlapTokens:], " ")
}

// splitSentences breaks text at terminal punctuation followed by whitespace.
// Good enough for documentation prose; it does not try to handle
// abbreviations.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				if s := strings.TrimSpace(b.String()); s != "" {
					sentences = append(sentences, s)
				}
				b.Reset()
			}
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
