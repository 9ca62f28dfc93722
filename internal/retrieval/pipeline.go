package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/xrplevm/docsbot/internal/conversation"
)

const (
	DefaultTopK           = 20
	DefaultScoreThreshold = 0.75
	DefaultRerankTopN     = 5

	contextSeparator = "\n\n---\n\n"
)

// Pipeline assembles a bounded retrieval context for a question: embed, query
// the vector store, filter by score, rerank, build a labeled context block.
// It operates on the latest user turn only, not the full conversation.
type Pipeline struct {
	embedder  Embedder
	searcher  Searcher
	reranker  Reranker
	topK      int
	threshold float64
	topN      int
	logger    *slog.Logger
}

func NewPipeline(log *slog.Logger, embedder Embedder, searcher Searcher, reranker Reranker, topK int, threshold float64, topN int) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if threshold <= 0 {
		threshold = DefaultScoreThreshold
	}
	if topN <= 0 {
		topN = DefaultRerankTopN
	}
	return &Pipeline{
		embedder:  embedder,
		searcher:  searcher,
		reranker:  reranker,
		topK:      topK,
		threshold: threshold,
		topN:      topN,
		logger:    log.With(slog.String("service", "retrieval")),
	}
}

// Augment returns the turn list for question: a system context turn followed
// by the user turn when relevant documents exist, or just the user turn when
// retrieval finds nothing. Retrieval failures degrade to the unaugmented
// call; they never fail the request.
func (p *Pipeline) Augment(ctx context.Context, question string) []conversation.Turn {
	userTurn := conversation.Turn{Role: conversation.RoleUser, Content: question}

	block := p.contextBlock(ctx, question)
	if block == "" {
		return []conversation.Turn{userTurn}
	}
	return []conversation.Turn{
		{Role: conversation.RoleSystem, Content: "Use ONLY these contexts:\n\n" + block},
		userTurn,
	}
}

func (p *Pipeline) contextBlock(ctx context.Context, question string) string {
	vector, err := p.embedder.Embed(ctx, question)
	if err != nil {
		p.logger.Warn("embedding failed, answering without retrieval context", slog.Any("error", err))
		return ""
	}

	hits, err := p.searcher.Search(ctx, vector, p.topK)
	if err != nil {
		p.logger.Warn("vector search failed, answering without retrieval context", slog.Any("error", err))
		return ""
	}

	hits = filterByScore(hits, p.threshold)
	if len(hits) == 0 {
		p.logger.Debug("no hits above threshold", slog.Float64("threshold", p.threshold))
		return ""
	}

	ordered := p.rank(ctx, question, hits)

	sections := make([]string, 0, len(ordered))
	for _, hit := range ordered {
		sections = append(sections, fmt.Sprintf("From %s:\n%s", hit.Path, hit.Text))
	}
	return strings.Join(sections, contextSeparator)
}

// rank orders the surviving hits. The reranker's word is final when it
// returns a valid list; a malformed reply falls back to raw-score order.
func (p *Pipeline) rank(ctx context.Context, question string, hits []Hit) []Hit {
	if p.reranker != nil {
		results, err := p.reranker.Rerank(ctx, question, hits, p.topN)
		switch {
		case err != nil:
			p.logger.Warn("rerank failed, falling back to raw score order", slog.Any("error", err))
		case len(results) > 0:
			if ordered, ok := pickByIndex(hits, results); ok {
				return ordered
			}
			p.logger.Warn("rerank returned out-of-range index, falling back to raw score order")
		}
	}

	ordered := append([]Hit(nil), hits...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})
	if len(ordered) > p.topN {
		ordered = ordered[:p.topN]
	}
	return ordered
}

// pickByIndex maps the reranker's 1-based indexes onto hits. A single index
// outside [1, len(hits)] discards the whole reranked order.
func pickByIndex(hits []Hit, results []RerankResult) ([]Hit, bool) {
	ordered := make([]Hit, 0, len(results))
	for _, res := range results {
		if res.Index < 1 || res.Index > len(hits) {
			return nil, false
		}
		ordered = append(ordered, hits[res.Index-1])
	}
	return ordered, true
}

func filterByScore(hits []Hit, threshold float64) []Hit {
	kept := hits[:0:0]
	for _, hit := range hits {
		if hit.Score >= threshold {
			kept = append(kept, hit)
		}
	}
	return kept
}
