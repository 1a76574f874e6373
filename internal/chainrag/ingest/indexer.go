package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/chainrag/internal/chainrag/metrics"
	"github.com/kart-io/chainrag/internal/chainrag/store"
	"github.com/kart-io/chainrag/pkg/llm"
)

// Config 索引器配置。
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	// BatchSize 单次嵌入请求的块数。
	BatchSize int
}

// Report 一次目录摄取的结果。
type Report struct {
	Documents int               `json:"documents"`
	Chunks    int               `json:"chunks"`
	Files     []string          `json:"files"`
	Skipped   []string          `json:"skipped,omitempty"`
	Removed   []string          `json:"removed,omitempty"`
	Failed    map[string]string `json:"failed,omitempty"`
	Duration  time.Duration     `json:"duration"`
}

// Indexer 将文档嵌入后写入向量库。
type Indexer struct {
	embedder llm.EmbeddingProvider
	store    store.VectorStore
	chunker  *Chunker
	batch    int
	metrics  *metrics.Metrics
}

// NewIndexer 创建索引器。m 可以为 nil。
func NewIndexer(embedder llm.EmbeddingProvider, vs store.VectorStore, m *metrics.Metrics, cfg *Config) *Indexer {
	if cfg == nil {
		cfg = &Config{ChunkSize: 1000, ChunkOverlap: 100, BatchSize: 32}
	}
	if m == nil {
		m = metrics.New()
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 32
	}
	return &Indexer{
		embedder: embedder,
		store:    vs,
		chunker:  NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		batch:    batch,
		metrics:  m,
	}
}

// IndexFile 摄取单个文件，并替换该来源之前写入的全部块。返回写入的块数。
func (ix *Indexer) IndexFile(ctx context.Context, root, rel string) (int, error) {
	doc, err := Load(root, rel)
	if err != nil {
		return 0, err
	}

	chunks := ix.chunker.Chunks(doc)
	for start := 0; start < len(chunks); start += ix.batch {
		end := min(start+ix.batch, len(chunks))
		texts := make([]string, end-start)
		for i := range texts {
			texts[i] = chunks[start+i].Text
		}

		vectors, err := ix.embedder.Embed(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embed %s: %w", rel, err)
		}
		if len(vectors) != len(texts) {
			return 0, fmt.Errorf("embed %s: got %d vectors for %d chunks", rel, len(vectors), len(texts))
		}
		for i, v := range vectors {
			chunks[start+i].Embedding = v
		}
	}

	// 嵌入全部成功后才替换旧数据，失败时集合保持原样。
	if err := ix.store.DeleteSource(ctx, rel); err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}
	if err := ix.store.Upsert(ctx, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// IndexDir 摄取 root 下的全部文档。单个文件失败会被记录并继续，
// 维度不一致或 ctx 结束会立即中止。
func (ix *Indexer) IndexDir(ctx context.Context, root string) (*Report, error) {
	start := time.Now()
	files, err := ListFiles(root)
	if err != nil {
		return nil, err
	}

	report := &Report{Files: files, Failed: map[string]string{}}
	logger.Infow("Ingesting documents", "dir", root, "files", len(files), "collection", ix.store.Collection())

	for _, rel := range files {
		if strings.EqualFold(filepath.Ext(rel), ".docx") {
			logger.Warnw("Skipping document without a parser", "source", rel)
			report.Skipped = append(report.Skipped, rel)
			continue
		}

		n, err := ix.IndexFile(ctx, root, rel)
		ix.metrics.RecordIndexing(1, n, err)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, store.ErrDimensionMismatch) {
				return report, err
			}
			logger.Errorw("Failed to ingest document", "source", rel, "error", err.Error())
			report.Failed[rel] = err.Error()
			continue
		}

		report.Documents++
		report.Chunks += n
		logger.Debugw("Document ingested", "source", rel, "chunks", n)
	}

	if err := ix.prune(ctx, files, report); err != nil {
		return report, err
	}

	report.Duration = time.Since(start)
	logger.Infow("Ingestion finished",
		"documents", report.Documents,
		"chunks", report.Chunks,
		"skipped", len(report.Skipped),
		"removed", len(report.Removed),
		"failed", len(report.Failed),
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}

// prune 删除目录中已不存在的来源（文件被删除或改名）留下的块。
func (ix *Indexer) prune(ctx context.Context, files []string, report *Report) error {
	sources, err := ix.store.Sources(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		logger.Warnw("Failed to list indexed sources, stale chunks kept", "error", err.Error())
		return nil
	}

	present := make(map[string]struct{}, len(files))
	for _, f := range files {
		present[f] = struct{}{}
	}
	for _, src := range sources {
		if _, ok := present[src]; ok {
			continue
		}
		if err := ix.store.DeleteSource(ctx, src); err != nil {
			if ctx.Err() != nil {
				return err
			}
			logger.Errorw("Failed to remove stale source", "source", src, "error", err.Error())
			report.Failed[src] = err.Error()
			continue
		}
		logger.Infow("Removed chunks of deleted document", "source", src)
		report.Removed = append(report.Removed, src)
	}
	return nil
}
