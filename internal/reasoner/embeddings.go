package reasoner

import (
	"context"
	"errors"
)

// Embed computes a fixed-dimension vector for text using the configured
// embedding model.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	err := c.withRetry(ctx, "embed text", func() error {
		return c.postJSON(ctx, "/embeddings", map[string]any{
			"model": c.opts.EmbeddingModel,
			"input": text,
		}, &resp)
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response contained no vectors")
	}
	return resp.Data[0].Embedding, nil
}
