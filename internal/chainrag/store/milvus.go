package store

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/kart-io/chainrag/pkg/component/milvus"
)

// MilvusStore 实现基于 Milvus 的向量存储。
type MilvusStore struct {
	client     *milvus.Client
	collection string
	dim        int
}

// NewMilvusStore 创建 Milvus 存储实例，集合不存在时按 dim 创建。
// 已存在集合的维度与 dim 不一致时返回 ErrDimensionMismatch。
func NewMilvusStore(ctx context.Context, client *milvus.Client, collection string, dim int) (*MilvusStore, error) {
	actual, err := client.EnsureCollection(ctx, collection, dim)
	if err != nil {
		return nil, unavailable("milvus", "ensure collection", err)
	}
	if actual != dim {
		return nil, fmt.Errorf("%w: collection %s has %d, configured %d", ErrDimensionMismatch, collection, actual, dim)
	}
	return &MilvusStore{client: client, collection: collection, dim: actual}, nil
}

// Name 返回实现名称。
func (s *MilvusStore) Name() string { return "milvus" }

// Collection 返回集合名称。
func (s *MilvusStore) Collection() string { return s.collection }

// Search 执行向量相似度搜索。L2 距离取负值，使分数越大越相似。
func (s *MilvusStore) Search(ctx context.Context, vector []float32, k int) ([]Chunk, error) {
	hits, err := s.client.Search(ctx, s.collection, vector, k)
	if err != nil {
		return nil, unavailable("milvus", "search", err)
	}

	negate := s.client.Metric() == entity.L2
	chunks := make([]Chunk, len(hits))
	for i, h := range hits {
		score := h.Score
		if negate {
			score = -score
		}
		chunks[i] = Chunk{ID: h.ID, Source: h.Source, Text: h.Text, Score: score}
	}
	return chunks, nil
}

// Upsert 批量写入文档块。
func (s *MilvusStore) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := checkDimensions(chunks, s.dim); err != nil {
		return err
	}

	rows := make([]milvus.Row, len(chunks))
	for i, c := range chunks {
		rows[i] = milvus.Row{ID: c.ID, Source: c.Source, Text: c.Text, Embedding: c.Embedding}
	}
	return unavailable("milvus", "upsert", s.client.Upsert(ctx, s.collection, rows))
}

// DeleteSource 删除某个来源文档的全部块。
func (s *MilvusStore) DeleteSource(ctx context.Context, source string) error {
	return unavailable("milvus", "delete", s.client.DeleteBySource(ctx, s.collection, source))
}

// Sources 返回集合中的全部来源。
func (s *MilvusStore) Sources(ctx context.Context) ([]string, error) {
	sources, err := s.client.Sources(ctx, s.collection)
	if err != nil {
		return nil, unavailable("milvus", "sources", err)
	}
	return sources, nil
}

// Reset 删除并按原维度重建集合。
func (s *MilvusStore) Reset(ctx context.Context) error {
	return unavailable("milvus", "reset", s.client.Recreate(ctx, s.collection, s.dim))
}

// Dimension 返回集合的向量维度。
func (s *MilvusStore) Dimension(context.Context) (int, error) {
	return s.dim, nil
}

// Count 获取集合中的实体数。
func (s *MilvusStore) Count(ctx context.Context) (int64, error) {
	n, err := s.client.Count(ctx, s.collection)
	return n, unavailable("milvus", "count", err)
}

// Close 关闭 Milvus 连接。
func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

var _ VectorStore = (*MilvusStore)(nil)
