package store

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"
)

// MemoryStore 进程内向量存储，使用余弦相似度暴力检索。
// 用于测试和无外部依赖的本地运行，不做持久化。
type MemoryStore struct {
	collection string
	dim        int

	mu     sync.RWMutex
	chunks map[string]Chunk
}

// NewMemoryStore 创建内存存储。
func NewMemoryStore(collection string, dim int) *MemoryStore {
	return &MemoryStore{
		collection: collection,
		dim:        dim,
		chunks:     make(map[string]Chunk),
	}
}

// Name 返回实现名称。
func (s *MemoryStore) Name() string { return "memory" }

// Collection 返回集合名称。
func (s *MemoryStore) Collection() string { return s.collection }

// Search 按余弦相似度返回至多 k 个块。
func (s *MemoryStore) Search(ctx context.Context, vector []float32, k int) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vector) != s.dim {
		return nil, fmt.Errorf("%w: query has %d, collection has %d", ErrDimensionMismatch, len(vector), s.dim)
	}

	s.mu.RLock()
	results := make([]Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		results = append(results, Chunk{
			ID:     c.ID,
			Source: c.Source,
			Text:   c.Text,
			Score:  cosine(vector, c.Embedding),
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if k >= 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Upsert 按 ID 写入文档块。
func (s *MemoryStore) Upsert(ctx context.Context, chunks []Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkDimensions(chunks, s.dim); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		c.Embedding = append([]float32(nil), c.Embedding...)
		c.Score = 0
		s.chunks[c.ID] = c
	}
	return nil
}

// DeleteSource 删除某个来源文档的全部块。
func (s *MemoryStore) DeleteSource(ctx context.Context, source string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.chunks {
		if c.Source == source {
			delete(s.chunks, id)
		}
	}
	return nil
}

// Sources 返回去重排序后的来源。
func (s *MemoryStore) Sources(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{}, len(s.chunks))
	out := make([]string, 0)
	for _, c := range s.chunks {
		if _, ok := seen[c.Source]; !ok {
			seen[c.Source] = struct{}{}
			out = append(out, c.Source)
		}
	}
	slices.Sort(out)
	return out, nil
}

// Reset 清空全部块。
func (s *MemoryStore) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.chunks = make(map[string]Chunk)
	s.mu.Unlock()
	return nil
}

// Dimension 返回集合的向量维度。
func (s *MemoryStore) Dimension(context.Context) (int, error) {
	return s.dim, nil
}

// Count 返回块数量。
func (s *MemoryStore) Count(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.chunks)), nil
}

// Close 无需释放资源。
func (s *MemoryStore) Close(context.Context) error { return nil }

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

var _ VectorStore = (*MemoryStore)(nil)
