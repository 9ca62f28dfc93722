package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xrplevm/docsbot/internal/conversation"
)

// Asker runs a side conversation against the reasoner.
type Asker interface {
	Ask(ctx context.Context, turns []conversation.Turn) (string, error)
}

// LLMReranker delegates candidate ranking to the general-purpose reasoner,
// trading latency and cost for implementation simplicity.
type LLMReranker struct {
	asker Asker
}

func NewLLMReranker(asker Asker) *LLMReranker {
	return &LLMReranker{asker: asker}
}

func (r *LLMReranker) Rerank(ctx context.Context, question string, hits []Hit, topN int) ([]RerankResult, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	for i, hit := range hits {
		fmt.Fprintf(&b, "%d) [%s] %s\n\n", i+1, hit.Path, hit.Text)
	}
	fmt.Fprintf(&b, "Return the top %d as a JSON array [{\"index\", \"path\", \"rationale\"}].", topN)

	reply, err := r.asker.Ask(ctx, []conversation.Turn{
		{Role: conversation.RoleSystem, Content: "Rank these snippets by relevance to the user's question."},
		{Role: conversation.RoleUser, Content: b.String()},
	})
	if err != nil {
		return nil, err
	}
	return parseRerankReply(reply, len(hits), topN)
}

// parseRerankReply validates the structured reply at the boundary. Any shape
// violation is an error the pipeline recovers from; it is never surfaced to
// the user-facing request.
func parseRerankReply(reply string, hitCount, topN int) ([]RerankResult, error) {
	trimmed := stripCodeFence(reply)
	var results []RerankResult
	if err := json.Unmarshal([]byte(trimmed), &results); err != nil {
		return nil, fmt.Errorf("malformed rerank reply: %w", err)
	}
	for _, res := range results {
		if res.Index < 1 || res.Index > hitCount {
			return nil, fmt.Errorf("rerank index %d out of range 1..%d", res.Index, hitCount)
		}
	}
	if len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
