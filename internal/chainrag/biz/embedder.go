package biz

import (
	"context"
	"fmt"

	"github.com/kart-io/chainrag/internal/chainrag/store"
	"github.com/kart-io/chainrag/pkg/llm"
)

// Embedder 将查询文本转换为向量，并保证维度与向量库一致。
type Embedder struct {
	provider llm.EmbeddingProvider
	dim      int
}

// NewEmbedder 创建 Embedder。dim 为向量库集合的维度。
func NewEmbedder(provider llm.EmbeddingProvider, dim int) *Embedder {
	return &Embedder{provider: provider, dim: dim}
}

// Embed 生成查询向量。维度不一致时返回 store.ErrDimensionMismatch，不做截断或补齐。
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.provider.EmbedSingle(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, llm.Empty(e.provider.Name(), "embed", "empty embedding vector")
	}
	if len(vec) != e.dim {
		return nil, fmt.Errorf("%w: %s returned %d, store expects %d",
			store.ErrDimensionMismatch, e.provider.Name(), len(vec), e.dim)
	}
	return vec, nil
}

// Dimension 返回期望的向量维度。
func (e *Embedder) Dimension() int { return e.dim }
