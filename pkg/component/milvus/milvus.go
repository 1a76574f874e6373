// Package milvus wraps the Milvus SDK for the chunk collection layout used by chainrag.
package milvus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	milvusopts "github.com/kart-io/chainrag/pkg/options/milvus"
)

// Field names of the chunk collection.
const (
	FieldID        = "id"
	FieldSource    = "source"
	FieldText      = "text"
	FieldEmbedding = "embedding"

	// MaxSourceLen bounds the source path, MaxIDLen a chunk id of the
	// form "<source>#<n>".
	MaxSourceLen = 1024
	MaxIDLen     = MaxSourceLen + 16
	maxTextLen   = 65535

	queryBatch = 1000
)

// Client wraps the Milvus SDK client.
type Client struct {
	client *milvusclient.Client
	opts   *milvusopts.Options
}

// New creates a new Milvus client.
func New(ctx context.Context, opts *milvusopts.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("milvus options is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  opts.Address,
		Username: opts.Username,
		Password: opts.Password,
		DBName:   opts.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	return &Client{
		client: c,
		opts:   opts,
	}, nil
}

// Close closes the Milvus client connection.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

// Metric returns the configured similarity metric.
func (c *Client) Metric() entity.MetricType {
	switch strings.ToUpper(c.opts.Metric) {
	case "IP":
		return entity.IP
	case "L2":
		return entity.L2
	default:
		return entity.COSINE
	}
}

// EnsureCollection creates the chunk collection when it does not exist and
// loads it into memory. It returns the dimension of the (possibly pre-existing)
// vector field so callers can detect a mismatch.
func (c *Client) EnsureCollection(ctx context.Context, name string, dim int) (int, error) {
	exists, err := c.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return 0, fmt.Errorf("failed to check collection existence: %w", err)
	}

	if !exists {
		if err := c.createCollection(ctx, name, dim); err != nil {
			return 0, err
		}
	}

	if err := c.load(ctx, name); err != nil {
		return 0, err
	}
	return c.Dimension(ctx, name)
}

func (c *Client) load(ctx context.Context, name string) error {
	loadTask, err := c.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}
	return nil
}

// Recreate drops the collection and creates an empty one with dim.
func (c *Client) Recreate(ctx context.Context, name string, dim int) error {
	if err := c.DropCollection(ctx, name); err != nil {
		return err
	}
	if err := c.createCollection(ctx, name, dim); err != nil {
		return err
	}
	return c.load(ctx, name)
}

func (c *Client) createCollection(ctx context.Context, name string, dim int) error {
	schema := entity.NewSchema().
		WithName(name).
		WithDescription("chainrag document chunks").
		WithField(entity.NewField().
			WithName(FieldID).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(MaxIDLen).
			WithIsPrimaryKey(true)).
		WithField(entity.NewField().
			WithName(FieldSource).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(MaxSourceLen)).
		WithField(entity.NewField().
			WithName(FieldText).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(maxTextLen)).
		WithField(entity.NewField().
			WithName(FieldEmbedding).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(dim)))

	if err := c.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(name, schema)); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx := index.NewIvfFlatIndex(c.Metric(), c.opts.NList)
	createIdxTask, err := c.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(name, FieldEmbedding, idx))
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := createIdxTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for index creation: %w", err)
	}
	return nil
}

// Dimension returns the dimension of the collection's vector field.
func (c *Client) Dimension(ctx context.Context, name string) (int, error) {
	coll, err := c.client.DescribeCollection(ctx, milvusclient.NewDescribeCollectionOption(name))
	if err != nil {
		return 0, fmt.Errorf("failed to describe collection: %w", err)
	}
	for _, f := range coll.Schema.Fields {
		if f.Name != FieldEmbedding {
			continue
		}
		dim, err := strconv.Atoi(f.TypeParams[entity.TypeParamDim])
		if err != nil {
			return 0, fmt.Errorf("invalid dim type param on %s: %w", FieldEmbedding, err)
		}
		return dim, nil
	}
	return 0, fmt.Errorf("collection %s has no %s field", name, FieldEmbedding)
}

// Row is one chunk to be written.
type Row struct {
	ID        string
	Source    string
	Text      string
	Embedding []float32
}

// validate checks a row against the collection schema so an oversized
// field fails with its name instead of a server-side rejection.
func (r Row) validate(dim int) error {
	switch {
	case len(r.Embedding) != dim:
		return fmt.Errorf("row %s has dimension %d, want %d", r.ID, len(r.Embedding), dim)
	case len(r.ID) > MaxIDLen:
		return fmt.Errorf("row id is %d bytes, limit %d: %.40s", len(r.ID), MaxIDLen, r.ID)
	case len(r.Source) > MaxSourceLen:
		return fmt.Errorf("row %s: source is %d bytes, limit %d", r.ID, len(r.Source), MaxSourceLen)
	case len(r.Text) > maxTextLen:
		return fmt.Errorf("row %s: text is %d bytes, limit %d", r.ID, len(r.Text), maxTextLen)
	}
	return nil
}

// Upsert writes rows keyed by ID and flushes so they are searchable immediately.
func (c *Client) Upsert(ctx context.Context, name string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	dim := len(rows[0].Embedding)
	ids := make([]string, len(rows))
	sources := make([]string, len(rows))
	texts := make([]string, len(rows))
	vectors := make([][]float32, len(rows))
	for i, r := range rows {
		if err := r.validate(dim); err != nil {
			return err
		}
		ids[i], sources[i], texts[i], vectors[i] = r.ID, r.Source, r.Text, r.Embedding
	}

	opt := milvusclient.NewColumnBasedInsertOption(name,
		column.NewColumnVarChar(FieldID, ids),
		column.NewColumnVarChar(FieldSource, sources),
		column.NewColumnVarChar(FieldText, texts),
		column.NewColumnFloatVector(FieldEmbedding, dim, vectors),
	)
	if _, err := c.client.Upsert(ctx, opt); err != nil {
		return fmt.Errorf("failed to upsert data: %w", err)
	}

	flushTask, err := c.client.Flush(ctx, milvusclient.NewFlushOption(name))
	if err != nil {
		return fmt.Errorf("failed to flush collection: %w", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for flush: %w", err)
	}
	return nil
}

// Hit is a single search result. Score is the raw metric value reported by Milvus.
type Hit struct {
	ID     string
	Source string
	Text   string
	Score  float32
}

// Search performs a vector similarity search. The collection must have been
// loaded by EnsureCollection.
func (c *Client) Search(ctx context.Context, name string, vector []float32, topK int) ([]Hit, error) {
	results, err := c.client.Search(ctx, milvusclient.NewSearchOption(
		name,
		topK,
		[]entity.Vector{entity.FloatVector(vector)},
	).WithANNSField(FieldEmbedding).
		WithSearchParam("nprobe", strconv.Itoa(c.opts.NProbe)).
		WithOutputFields(FieldSource, FieldText))
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	if len(results) == 0 {
		return []Hit{}, nil
	}

	rs := results[0]
	hits := make([]Hit, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		hit := Hit{Score: rs.Scores[i]}
		if idCol, ok := rs.IDs.(*column.ColumnVarChar); ok {
			hit.ID = idCol.Data()[i]
		}
		for _, field := range rs.Fields {
			col, ok := field.(*column.ColumnVarChar)
			if !ok {
				continue
			}
			switch col.Name() {
			case FieldSource:
				hit.Source = col.Data()[i]
			case FieldText:
				hit.Text = col.Data()[i]
			}
		}
		hits = append(hits, hit)
	}

	return hits, nil
}

// DeleteBySource removes every chunk of one source document.
func (c *Client) DeleteBySource(ctx context.Context, name, source string) error {
	expr := fmt.Sprintf("%s == %s", FieldSource, strconv.Quote(source))
	if _, err := c.client.Delete(ctx, milvusclient.NewDeleteOption(name).WithExpr(expr)); err != nil {
		return fmt.Errorf("failed to delete source %s: %w", source, err)
	}
	return nil
}

// Sources returns the distinct source values stored in the collection, sorted.
func (c *Client) Sources(ctx context.Context, name string) ([]string, error) {
	it, err := c.client.QueryIterator(ctx, milvusclient.NewQueryIteratorOption(name).
		WithBatchSize(queryBatch).
		WithOutputFields(FieldSource))
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}

	seen := map[string]struct{}{}
	for {
		rs, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query sources: %w", err)
		}
		col, ok := rs.GetColumn(FieldSource).(*column.ColumnVarChar)
		if !ok {
			return nil, fmt.Errorf("collection %s returned no %s column", name, FieldSource)
		}
		for _, src := range col.Data() {
			seen[src] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for src := range seen {
		out = append(out, src)
	}
	slices.Sort(out)
	return out, nil
}

// DropCollection drops a collection.
func (c *Client) DropCollection(ctx context.Context, name string) error {
	if err := c.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(name)); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// Count returns the number of entities in a collection.
func (c *Client) Count(ctx context.Context, name string) (int64, error) {
	stats, err := c.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(name))
	if err != nil {
		return 0, fmt.Errorf("failed to get collection stats: %w", err)
	}

	if val, ok := stats["row_count"]; ok {
		return strconv.ParseInt(val, 10, 64)
	}
	return 0, nil
}
