package chainrag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cacheopts "github.com/kart-io/chainrag/pkg/options/cache"
	apierrors "github.com/kart-io/chainrag/pkg/utils/errors"
)

type fixedEmbedder struct {
	dim int
	err error
}

func (f *fixedEmbedder) Name() string { return "fixed" }

func (f *fixedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.EmbedSingle(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fixedEmbedder) EmbedSingle(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return make([]float32, f.dim), nil
}

func TestCacheConfig_NamespacedByModel(t *testing.T) {
	opts := cacheopts.NewOptions()
	opts.TTL = time.Hour

	a := cacheConfig(opts, "nomic-embed-text")
	b := cacheConfig(opts, "mxbai-embed-large")

	assert.Equal(t, "nomic-embed-text", a.Namespace)
	assert.Equal(t, "mxbai-embed-large", b.Namespace)
	assert.Equal(t, opts.KeyPrefix, a.KeyPrefix)
	assert.Equal(t, time.Hour, a.TTL)

	assert.Equal(t, "nomic-embed-text", cacheConfig(nil, "nomic-embed-text").Namespace)
}

func TestCheckEmbeddingDimension(t *testing.T) {
	ctx := context.Background()

	require.NoError(t, checkEmbeddingDimension(ctx, &fixedEmbedder{dim: 768}, 768))

	err := checkEmbeddingDimension(ctx, &fixedEmbedder{dim: 1024}, 768)
	assert.True(t, errors.Is(err, apierrors.ErrDimensionMismatch))

	// 启动时供应商不可达只告警。
	assert.NoError(t, checkEmbeddingDimension(ctx, &fixedEmbedder{err: errors.New("connection refused")}, 768))
}
