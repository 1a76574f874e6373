// Package ingest provides document ingestion options.
package ingest

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/chainrag/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options 文档摄取配置。
type Options struct {
	// DataDir 待摄取文档目录。
	DataDir string `json:"data-dir" mapstructure:"data-dir"`

	// ChunkSize 分块大小（rune）。
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// ChunkOverlap 相邻分块重叠（rune）。
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	// BatchSize 单次嵌入请求的分块数。
	BatchSize int `json:"batch-size" mapstructure:"batch-size"`

	// Watch 是否监听目录变化并重新摄取。
	Watch bool `json:"watch" mapstructure:"watch"`

	// Rebuild 摄取前删除并重建集合。
	Rebuild bool `json:"rebuild" mapstructure:"rebuild"`

	// Debounce 监听模式下合并事件的等待时间。
	Debounce time.Duration `json:"debounce" mapstructure:"debounce"`
}

// NewOptions 创建默认摄取配置。
func NewOptions() *Options {
	return &Options{
		DataDir:      "data",
		ChunkSize:    1000,
		ChunkOverlap: 100,
		BatchSize:    32,
		Debounce:     2 * time.Second,
	}
}

// AddFlags adds flags for ingest options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "ingest."
	fs.StringVar(&o.DataDir, p+"data-dir", o.DataDir, "Directory holding the documents to ingest.")
	fs.IntVar(&o.ChunkSize, p+"chunk-size", o.ChunkSize, "Chunk size in characters.")
	fs.IntVar(&o.ChunkOverlap, p+"chunk-overlap", o.ChunkOverlap, "Overlap between adjacent chunks in characters.")
	fs.IntVar(&o.BatchSize, p+"batch-size", o.BatchSize, "Chunks per embedding request.")
	fs.BoolVar(&o.Watch, p+"watch", o.Watch, "Watch the data directory and re-ingest on change.")
	fs.BoolVar(&o.Rebuild, p+"rebuild", o.Rebuild, "Drop and recreate the collection before ingesting.")
	fs.DurationVar(&o.Debounce, p+"debounce", o.Debounce, "Quiet period before a watched change is ingested.")
}

// Validate validates the ingest options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.DataDir == "" {
		errs = append(errs, fmt.Errorf("ingest.data-dir is required"))
	}
	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("ingest.chunk-size must be positive"))
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		errs = append(errs, fmt.Errorf("ingest.chunk-overlap must be in [0, chunk-size)"))
	}
	if o.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("ingest.batch-size must be positive"))
	}
	return errs
}

// Complete completes the ingest options with defaults.
func (o *Options) Complete() error {
	if o.Debounce <= 0 {
		o.Debounce = 2 * time.Second
	}
	return nil
}
