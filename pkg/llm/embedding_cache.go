package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/chainrag/pkg/utils/json"
)

var _ EmbeddingProvider = (*CachedEmbeddingProvider)(nil)

// EmbeddingCacheConfig 向量缓存配置。
type EmbeddingCacheConfig struct {
	TTL       time.Duration
	KeyPrefix string
	// Namespace 一般取嵌入模型名，不同模型的向量不能混用；为空时用 provider 名。
	Namespace string
}

// DefaultEmbeddingCacheConfig 默认缓存一天。
func DefaultEmbeddingCacheConfig() *EmbeddingCacheConfig {
	return &EmbeddingCacheConfig{TTL: 24 * time.Hour, KeyPrefix: "chainrag:emb:"}
}

// CachedEmbeddingProvider 以文本 sha256 为键在 Redis 中缓存向量。
// Redis 不可用时退化为直接调用底层 provider。
type CachedEmbeddingProvider struct {
	provider EmbeddingProvider
	rdb      goredis.UniversalClient
	prefix   string
	ttl      time.Duration
}

// NewCachedEmbeddingProvider 包装 provider。config 为 nil 时使用默认配置。
func NewCachedEmbeddingProvider(provider EmbeddingProvider, rdb goredis.UniversalClient, config *EmbeddingCacheConfig) *CachedEmbeddingProvider {
	if config == nil {
		config = DefaultEmbeddingCacheConfig()
	}
	ns := config.Namespace
	if ns == "" {
		ns = provider.Name()
	}
	return &CachedEmbeddingProvider{
		provider: provider,
		rdb:      rdb,
		prefix:   config.KeyPrefix + ns + ":",
		ttl:      config.TTL,
	}
}

// Name 返回 "<provider>-cached"。
func (c *CachedEmbeddingProvider) Name() string { return c.provider.Name() + "-cached" }

func (c *CachedEmbeddingProvider) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.prefix + hex.EncodeToString(sum[:])
}

// lookup 一次 MGET 取回全部键，返回未命中的下标。损坏的条目按未命中处理并删除。
func (c *CachedEmbeddingProvider) lookup(ctx context.Context, keys []string, out [][]float32) []int {
	all := func() []int {
		idx := make([]int, len(keys))
		for i := range idx {
			idx[i] = i
		}
		return idx
	}

	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		logger.Warnw("Embedding cache read failed", "keys", len(keys), "error", err.Error())
		return all()
	}

	var misses, corrupt []int
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			misses = append(misses, i)
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(s), &vec); err != nil || len(vec) == 0 {
			corrupt = append(corrupt, i)
			misses = append(misses, i)
			continue
		}
		out[i] = vec
	}
	for _, i := range corrupt {
		logger.Warnw("Dropping corrupt embedding cache entry", "key", keys[i])
		_ = c.rdb.Del(ctx, keys[i]).Err()
	}
	return misses
}

// store 在一个 pipeline 中写回新向量。
func (c *CachedEmbeddingProvider) store(ctx context.Context, keys []string, vecs [][]float32) {
	_, err := c.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for i, vec := range vecs {
			data, err := json.Marshal(vec)
			if err != nil {
				continue
			}
			p.Set(ctx, keys[i], data, c.ttl)
		}
		return nil
	})
	if err != nil {
		logger.Warnw("Embedding cache write failed", "keys", len(keys), "error", err.Error())
	}
}

// EmbedSingle 嵌入单个文本。
func (c *CachedEmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	out := make([][]float32, 1)
	if len(c.lookup(ctx, []string{key}, out)) == 0 {
		return out[0], nil
	}

	vec, err := c.provider.EmbedSingle(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(ctx, []string{key}, [][]float32{vec})
	return vec, nil
}

// Embed 批量嵌入，只把未命中的文本交给底层 provider。
func (c *CachedEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	out := make([][]float32, len(texts))
	misses := c.lookup(ctx, keys, out)
	if len(misses) == 0 {
		return out, nil
	}
	logger.Debugw("Embedding cache miss", "total", len(texts), "missed", len(misses))

	missTexts := make([]string, len(misses))
	missKeys := make([]string, len(misses))
	for j, i := range misses {
		missTexts[j] = texts[i]
		missKeys[j] = keys[i]
	}
	fresh, err := c.provider.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(misses) {
		return nil, Empty(c.provider.Name(), "embed", "embedding count does not match input count")
	}
	for j, i := range misses {
		out[i] = fresh[j]
	}
	c.store(ctx, missKeys, fresh)
	return out, nil
}

// ClearCache 删除当前命名空间下的全部向量，返回删除数。
func (c *CachedEmbeddingProvider) ClearCache(ctx context.Context) (int, error) {
	iter := c.rdb.Scan(ctx, 0, c.prefix+"*", 200).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		n, err := c.rdb.Del(ctx, iter.Val()).Result()
		if err == nil {
			deleted += int(n)
		}
	}
	return deleted, iter.Err()
}
