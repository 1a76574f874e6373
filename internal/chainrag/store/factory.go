package store

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/kart-io/chainrag/pkg/component/milvus"
	"github.com/kart-io/chainrag/pkg/options/vectorstore"
)

// New 按配置创建向量存储。集合维度与配置不一致时返回 ErrDimensionMismatch，
// 调用方应在启动阶段直接失败。
func New(ctx context.Context, opts *vectorstore.Options) (VectorStore, error) {
	var (
		s   VectorStore
		err error
	)

	switch opts.Backend {
	case vectorstore.BackendMilvus:
		var client *milvus.Client
		client, err = milvus.New(ctx, opts.Milvus)
		if err != nil {
			return nil, unavailable("milvus", "connect", err)
		}
		s, err = NewMilvusStore(ctx, client, opts.Collection, opts.Dimension)
		if err != nil {
			_ = client.Close(ctx)
		}
	case vectorstore.BackendQdrant:
		s, err = NewQdrantStore(ctx, opts.Qdrant, opts.Collection, opts.Dimension)
	case vectorstore.BackendMemory:
		s = NewMemoryStore(opts.Collection, opts.Dimension)
	default:
		return nil, fmt.Errorf("unsupported vector store backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	logger.Infow("Vector store ready",
		"backend", s.Name(),
		"collection", s.Collection(),
		"dimension", opts.Dimension,
	)
	return s, nil
}
