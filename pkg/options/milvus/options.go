// Package milvusopts Milvus 向量库连接与索引配置，对应 store.milvus 段。
package milvusopts

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/chainrag/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

var supportedMetrics = []string{"COSINE", "IP", "L2"}

// Options Milvus 配置。
type Options struct {
	Address  string `json:"address" mapstructure:"address"`
	Database string `json:"database" mapstructure:"database"`
	Username string `json:"username" mapstructure:"username"`
	// Password 不参与序列化，可由 MILVUS_PASSWORD 提供。
	Password string        `json:"-" mapstructure:"password"`
	Timeout  time.Duration `json:"timeout" mapstructure:"timeout"`

	// Metric 相似度度量，集合创建后不可更改。
	Metric string `json:"metric" mapstructure:"metric"`
	// NList 建 IVF_FLAT 索引时的聚类数。
	NList int `json:"nlist" mapstructure:"nlist"`
	// NProbe 检索时扫描的聚类数，越大召回越高、越慢。
	NProbe int `json:"nprobe" mapstructure:"nprobe"`
}

// NewOptions 返回本地单机部署的默认配置。
func NewOptions() *Options {
	return &Options{
		Address:  "localhost:19530",
		Database: "default",
		Timeout:  30 * time.Second,
		Metric:   "COSINE",
		NList:    128,
		NProbe:   16,
	}
}

// AddFlags 注册 milvus.* 参数。
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "milvus."
	fs.StringVar(&o.Address, p+"address", o.Address, "Milvus host:port.")
	fs.StringVar(&o.Database, p+"database", o.Database, "Milvus database.")
	fs.StringVar(&o.Username, p+"username", o.Username, "Milvus user.")
	fs.StringVar(&o.Password, p+"password", o.Password, "Milvus password (prefer MILVUS_PASSWORD).")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Dial and per call timeout.")
	fs.StringVar(&o.Metric, p+"metric", o.Metric, "Similarity metric: "+strings.Join(supportedMetrics, ", ")+".")
	fs.IntVar(&o.NList, p+"nlist", o.NList, "IVF_FLAT cluster count used when creating the collection.")
	fs.IntVar(&o.NProbe, p+"nprobe", o.NProbe, "Clusters scanned per search.")
}

// Complete 规范化度量名并从环境变量读取密码。
func (o *Options) Complete() error {
	o.Metric = strings.ToUpper(o.Metric)
	if o.Password == "" {
		o.Password = os.Getenv("MILVUS_PASSWORD")
	}
	return nil
}

// Validate 校验配置。
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.Address == "" {
		errs = append(errs, fmt.Errorf("milvus.address cannot be empty"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("milvus.timeout must be positive"))
	}
	if !slices.Contains(supportedMetrics, strings.ToUpper(o.Metric)) {
		errs = append(errs, fmt.Errorf("milvus.metric %q is not one of %v", o.Metric, supportedMetrics))
	}
	if o.NList <= 0 || o.NProbe <= 0 {
		errs = append(errs, fmt.Errorf("milvus.nlist and milvus.nprobe must be positive"))
	}
	if o.NProbe > o.NList {
		errs = append(errs, fmt.Errorf("milvus.nprobe %d exceeds nlist %d", o.NProbe, o.NList))
	}
	return errs
}
