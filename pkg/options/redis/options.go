// Package redis 定义嵌入缓存使用的 Redis 连接配置。
package redis

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/kart-io/chainrag/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options Redis 连接配置。设置 URL 时忽略 Host、Port、Password 与 Database。
type Options struct {
	URL          string        `json:"-" mapstructure:"url"`
	Host         string        `json:"host" mapstructure:"host"`
	Port         int           `json:"port" mapstructure:"port"`
	Password     string        `json:"-" mapstructure:"password"`
	Database     int           `json:"database" mapstructure:"database"`
	PoolSize     int           `json:"pool-size" mapstructure:"pool-size"`
	DialTimeout  time.Duration `json:"dial-timeout" mapstructure:"dial-timeout"`
	ReadTimeout  time.Duration `json:"read-timeout" mapstructure:"read-timeout"`
	WriteTimeout time.Duration `json:"write-timeout" mapstructure:"write-timeout"`
}

// NewOptions 返回本机默认配置。缓存读写超时较短，慢于重新嵌入就没有意义。
func NewOptions() *Options {
	return &Options{
		Host:         "127.0.0.1",
		Port:         6379,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
}

// AddFlags 注册 redis.* 命令行参数。
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "redis."
	fs.StringVar(&o.URL, p+"url", o.URL, "Redis URL, e.g. redis://:secret@cache:6379/2. Overrides host, port, password and database.")
	fs.StringVar(&o.Host, p+"host", o.Host, "Redis host.")
	fs.IntVar(&o.Port, p+"port", o.Port, "Redis port.")
	fs.StringVar(&o.Password, p+"password", o.Password, "Redis password. Defaults to $REDIS_PASSWORD.")
	fs.IntVar(&o.Database, p+"database", o.Database, "Redis logical database.")
	fs.IntVar(&o.PoolSize, p+"pool-size", o.PoolSize, "Maximum number of Redis connections.")
	fs.DurationVar(&o.DialTimeout, p+"dial-timeout", o.DialTimeout, "Redis dial timeout.")
	fs.DurationVar(&o.ReadTimeout, p+"read-timeout", o.ReadTimeout, "Redis read timeout.")
	fs.DurationVar(&o.WriteTimeout, p+"write-timeout", o.WriteTimeout, "Redis write timeout.")
}

// Complete 未配置密码时读取 REDIS_PASSWORD。
func (o *Options) Complete() error {
	if o.Password == "" && o.URL == "" {
		o.Password = os.Getenv("REDIS_PASSWORD")
	}
	return nil
}

// Validate 校验配置。
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	if o.URL != "" {
		if _, err := goredis.ParseURL(o.URL); err != nil {
			return []error{fmt.Errorf("redis.url: %w", err)}
		}
		return nil
	}

	var errs []error
	if o.Host == "" {
		errs = append(errs, fmt.Errorf("redis.host is required"))
	}
	if o.Port <= 0 || o.Port > 65535 {
		errs = append(errs, fmt.Errorf("redis.port %d is out of range", o.Port))
	}
	if o.Database < 0 {
		errs = append(errs, fmt.Errorf("redis.database must not be negative"))
	}
	return errs
}

// Addr 返回 host:port，用于日志。
func (o *Options) Addr() string {
	if o.URL != "" {
		if opt, err := goredis.ParseURL(o.URL); err == nil {
			return opt.Addr
		}
	}
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// String 打印连接地址，不含密码。
func (o *Options) String() string {
	return "redis://" + o.Addr()
}

// NewClient 创建客户端。关闭客户端内重试：缓存失败直接回落到嵌入供应商。
func (o *Options) NewClient() (*goredis.Client, error) {
	opt := &goredis.Options{
		Addr:     o.Addr(),
		Password: o.Password,
		DB:       o.Database,
	}
	if o.URL != "" {
		parsed, err := goredis.ParseURL(o.URL)
		if err != nil {
			return nil, fmt.Errorf("redis.url: %w", err)
		}
		opt = parsed
	}
	opt.MaxRetries = -1
	opt.PoolSize = o.PoolSize
	opt.DialTimeout = o.DialTimeout
	opt.ReadTimeout = o.ReadTimeout
	opt.WriteTimeout = o.WriteTimeout
	return goredis.NewClient(opt), nil
}
