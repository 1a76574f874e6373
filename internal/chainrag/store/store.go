package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable 向量库不可达或返回服务端错误。空集合不是错误。
var ErrUnavailable = errors.New("vector store unavailable")

// ErrDimensionMismatch 写入或查询向量的维度与集合不一致。
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Chunk 表示文档块。
type Chunk struct {
	// ID 文档块 ID，同一来源同一位置的块 ID 稳定。
	ID string
	// Source 来源文档标识（相对路径）。
	Source string
	// Text 文档块文本。
	Text string
	// Embedding 嵌入向量，检索结果中不回填。
	Embedding []float32
	// Score 相对某次查询的相似度，只在检索结果中有意义。
	Score float32
}

// VectorStore 定义向量存储接口。
type VectorStore interface {
	// Name 返回实现名称。
	Name() string

	// Collection 返回绑定的集合名称。
	Collection() string

	// Search 返回与 vector 最相似的至多 k 个块。
	Search(ctx context.Context, vector []float32, k int) ([]Chunk, error)

	// Upsert 按 ID 写入文档块。
	Upsert(ctx context.Context, chunks []Chunk) error

	// DeleteSource 删除某个来源文档的全部块。
	DeleteSource(ctx context.Context, source string) error

	// Sources 返回集合中出现过的来源，去重并排序。
	Sources(ctx context.Context) ([]string, error)

	// Reset 清空集合，维度不变。
	Reset(ctx context.Context) error

	// Dimension 返回集合的向量维度。
	Dimension(ctx context.Context) (int, error)

	// Count 返回集合中的块数量。
	Count(ctx context.Context) (int64, error)

	// Close 关闭连接。
	Close(ctx context.Context) error
}

// unavailable wraps err as ErrUnavailable while keeping context errors visible
// to errors.Is so the caller can tell a deadline from an outage.
func unavailable(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s %s: %w", backend, op, err)
	}
	return fmt.Errorf("%s %s: %w: %w", backend, op, ErrUnavailable, err)
}

func checkDimensions(chunks []Chunk, dim int) error {
	for _, c := range chunks {
		if len(c.Embedding) != dim {
			return fmt.Errorf("%w: chunk %s has %d, collection has %d", ErrDimensionMismatch, c.ID, len(c.Embedding), dim)
		}
	}
	return nil
}
