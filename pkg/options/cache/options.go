// Package cache 定义查询嵌入缓存的配置。
package cache

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/chainrag/pkg/options"
	redisopts "github.com/kart-io/chainrag/pkg/options/redis"
)

var _ options.IOptions = (*Options)(nil)

// Options 嵌入缓存配置。默认关闭；启用后 Redis 不可达只告警，不阻止启动。
type Options struct {
	Enabled bool          `json:"enabled" mapstructure:"enabled"`
	TTL     time.Duration `json:"ttl" mapstructure:"ttl"`
	// KeyPrefix 实际键为 prefix + 模型名 + 文本摘要，换模型不会读到旧向量。
	KeyPrefix string             `json:"key-prefix" mapstructure:"key-prefix"`
	Redis     *redisopts.Options `json:"redis" mapstructure:"redis"`
}

// NewOptions 返回默认配置。
func NewOptions() *Options {
	return &Options{
		TTL:       24 * time.Hour,
		KeyPrefix: "chainrag:emb:",
		Redis:     redisopts.NewOptions(),
	}
}

// AddFlags 注册 cache.* 与 cache.redis.* 参数。
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "cache."
	fs.BoolVar(&o.Enabled, p+"enabled", o.Enabled, "Cache embeddings in Redis.")
	fs.DurationVar(&o.TTL, p+"ttl", o.TTL, "Lifetime of a cached embedding.")
	fs.StringVar(&o.KeyPrefix, p+"key-prefix", o.KeyPrefix, "Prefix of cache keys.")

	if o.Redis == nil {
		o.Redis = redisopts.NewOptions()
	}
	o.Redis.AddFlags(fs, append(prefixes[:len(prefixes):len(prefixes)], "cache")...)
}

// Complete 补全 Redis 配置。
func (o *Options) Complete() error {
	if o.Redis == nil {
		o.Redis = redisopts.NewOptions()
	}
	return o.Redis.Complete()
}

// Validate 仅在启用时校验。
func (o *Options) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}
	var errs []error
	if o.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive"))
	}
	if o.KeyPrefix == "" {
		errs = append(errs, fmt.Errorf("cache.key-prefix cannot be empty"))
	}
	if o.Redis == nil {
		return append(errs, fmt.Errorf("cache.redis is required"))
	}
	for _, err := range o.Redis.Validate() {
		errs = append(errs, fmt.Errorf("cache.%w", err))
	}
	return errs
}
