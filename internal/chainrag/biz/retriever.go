package biz

import (
	"context"
	"sort"

	"github.com/kart-io/chainrag/internal/chainrag/store"
)

// RetrievalResult 检索结果，按分数降序排列，长度不超过 k，ID 不重复。
type RetrievalResult struct {
	Chunks []store.Chunk
}

// Retriever 负责向量检索。
type Retriever struct {
	store store.VectorStore
}

// NewRetriever 创建检索器实例。
func NewRetriever(vectorStore store.VectorStore) *Retriever {
	return &Retriever{store: vectorStore}
}

// Retrieve 返回与 vector 最相似的至多 k 个块。空集合返回空结果而不是错误。
func (r *Retriever) Retrieve(ctx context.Context, vector []float32, k int) (*RetrievalResult, error) {
	chunks, err := r.store.Search(ctx, vector, k)
	if err != nil {
		return nil, err
	}
	return &RetrievalResult{Chunks: normalize(chunks, k)}, nil
}

// normalize drops duplicate ids (keeping the best score), orders by score
// descending with ties kept in store order, and cuts to k.
func normalize(chunks []store.Chunk, k int) []store.Chunk {
	best := make(map[string]int, len(chunks))
	out := make([]store.Chunk, 0, len(chunks))
	for _, c := range chunks {
		c.Embedding = nil
		if i, ok := best[c.ID]; ok {
			if c.Score > out[i].Score {
				out[i] = c
			}
			continue
		}
		best[c.ID] = len(out)
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if k >= 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
