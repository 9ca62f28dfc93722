// Package retrieval narrows the document corpus to a small context block
// before the reasoner is invoked.
package retrieval

import "context"

// Hit is one scored result from the vector similarity store.
type Hit struct {
	Text  string  `json:"text"`
	Path  string  `json:"path"`
	Score float64 `json:"score"`
}

// RerankResult is one entry of the reranked candidate list. Index is a
// 1-based reference into the hit list handed to the reranker.
type RerankResult struct {
	Index     int    `json:"index"`
	Path      string `json:"path"`
	Rationale string `json:"rationale"`
}

// Embedder computes a vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher queries the vector store for the nearest documents.
type Searcher interface {
	Search(ctx context.Context, vector []float32, limit int) ([]Hit, error)
}

// Reranker reorders candidate hits by relevance to a question. Implementations
// are swappable; the default delegates to the reasoner.
type Reranker interface {
	Rerank(ctx context.Context, question string, hits []Hit, topN int) ([]RerankResult, error)
}
