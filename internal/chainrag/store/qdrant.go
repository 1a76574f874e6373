package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"

	"github.com/google/uuid"

	qdrantopts "github.com/kart-io/chainrag/pkg/options/qdrant"
	"github.com/kart-io/chainrag/pkg/utils/httpclient"
	"github.com/kart-io/chainrag/pkg/utils/json"
)

// Qdrant 载荷字段。
const (
	payloadText    = "text"
	payloadSource  = "source"
	payloadChunkID = "chunk_id"
)

// scrollPage 列举来源时每页的点数。
const scrollPage = 256

// QdrantStore 基于 Qdrant REST API 的向量存储，使用余弦距离。
type QdrantStore struct {
	client     *httpclient.Client
	base       string
	collection string
	dim        int
}

// NewQdrantStore 确保集合存在且维度一致。
func NewQdrantStore(ctx context.Context, opts *qdrantopts.Options, collection string, dim int) (*QdrantStore, error) {
	client := httpclient.NewClient(opts.Timeout)
	if opts.APIKey != "" {
		client.WithHeader("api-key", opts.APIKey)
	}
	s := &QdrantStore{
		client:     client,
		base:       opts.URL + "/collections/" + url.PathEscape(collection),
		collection: collection,
		dim:        dim,
	}

	var exists struct {
		Result struct {
			Exists bool `json:"exists"`
		} `json:"result"`
	}
	if err := s.call(ctx, "collection exists", http.MethodGet, "/exists", nil, &exists); err != nil {
		return nil, err
	}
	if !exists.Result.Exists {
		if err := s.create(ctx); err != nil {
			return nil, err
		}
	}

	actual, err := s.describe(ctx)
	if err != nil {
		return nil, err
	}
	if actual != dim {
		return nil, fmt.Errorf("%w: collection %s has %d, configured %d", ErrDimensionMismatch, collection, actual, dim)
	}
	return s, nil
}

type vectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance,omitempty"`
}

// create 建集合并为 source 建 keyword 索引，按来源删除与列举依赖它。
func (s *QdrantStore) create(ctx context.Context) error {
	body := map[string]any{"vectors": vectorParams{Size: s.dim, Distance: "Cosine"}}
	if err := s.call(ctx, "create collection", http.MethodPut, "", body, nil); err != nil {
		return err
	}
	index := map[string]any{"field_name": payloadSource, "field_schema": "keyword"}
	return s.call(ctx, "create index", http.MethodPut, "/index?wait=true", index, nil)
}

func (s *QdrantStore) describe(ctx context.Context) (int, error) {
	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors vectorParams `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := s.call(ctx, "collection info", http.MethodGet, "", nil, &info); err != nil {
		return 0, err
	}
	return info.Result.Config.Params.Vectors.Size, nil
}

// Name 返回实现名称。
func (s *QdrantStore) Name() string { return "qdrant" }

// Collection 返回集合名称。
func (s *QdrantStore) Collection() string { return s.collection }

type qdrantPayload struct {
	Text    string `json:"text"`
	Source  string `json:"source"`
	ChunkID string `json:"chunk_id"`
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload *qdrantPayload `json:"payload,omitempty"`
}

// Search 返回余弦相似度最高的至多 k 个块。
func (s *QdrantStore) Search(ctx context.Context, vector []float32, k int) ([]Chunk, error) {
	if len(vector) != s.dim {
		return nil, fmt.Errorf("%w: query has %d, collection has %d", ErrDimensionMismatch, len(vector), s.dim)
	}
	if k <= 0 {
		return []Chunk{}, nil
	}

	req := map[string]any{"vector": vector, "limit": k, "with_payload": true}
	var resp struct {
		Result []struct {
			ID      string        `json:"id"`
			Score   float32       `json:"score"`
			Payload qdrantPayload `json:"payload"`
		} `json:"result"`
	}
	if err := s.call(ctx, "search", http.MethodPost, "/points/search", req, &resp); err != nil {
		return nil, err
	}

	chunks := make([]Chunk, 0, len(resp.Result))
	for _, p := range resp.Result {
		c := Chunk{ID: p.Payload.ChunkID, Source: p.Payload.Source, Text: p.Payload.Text, Score: p.Score}
		if c.ID == "" {
			c.ID = p.ID
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// Upsert 按块 ID 派生的 UUID 写入，重复摄取覆盖旧点。
func (s *QdrantStore) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := checkDimensions(chunks, s.dim); err != nil {
		return err
	}

	points := make([]qdrantPoint, len(chunks))
	for i, c := range chunks {
		points[i] = qdrantPoint{
			ID:      pointID(c.ID),
			Vector:  c.Embedding,
			Payload: &qdrantPayload{Text: c.Text, Source: c.Source, ChunkID: c.ID},
		}
	}
	return s.call(ctx, "upsert", http.MethodPut, "/points?wait=true", map[string]any{"points": points}, nil)
}

// DeleteSource 按 source 载荷过滤删除。
func (s *QdrantStore) DeleteSource(ctx context.Context, source string) error {
	return s.call(ctx, "delete", http.MethodPost, "/points/delete?wait=true", sourceFilter(source), nil)
}

func sourceFilter(source string) map[string]any {
	return map[string]any{
		"filter": map[string]any{
			"must": []any{
				map[string]any{"key": payloadSource, "match": map[string]any{"value": source}},
			},
		},
	}
}

// Sources 翻页扫描全部点的 source 载荷，返回去重排序后的结果。
func (s *QdrantStore) Sources(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	var offset json.RawMessage
	for {
		req := map[string]any{
			"limit":        scrollPage,
			"with_payload": []string{payloadSource},
			"with_vector":  false,
		}
		if len(offset) > 0 {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points         []qdrantPoint   `json:"points"`
				NextPageOffset json.RawMessage `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := s.call(ctx, "scroll", http.MethodPost, "/points/scroll", req, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Result.Points {
			if p.Payload != nil {
				seen[p.Payload.Source] = struct{}{}
			}
		}
		offset = resp.Result.NextPageOffset
		if len(offset) == 0 || string(offset) == "null" {
			break
		}
	}

	out := make([]string, 0, len(seen))
	for src := range seen {
		out = append(out, src)
	}
	slices.Sort(out)
	return out, nil
}

// Reset 删除并按原维度重建集合。
func (s *QdrantStore) Reset(ctx context.Context) error {
	if err := s.call(ctx, "drop collection", http.MethodDelete, "", nil, nil); err != nil {
		return err
	}
	return s.create(ctx)
}

// Dimension 返回集合的向量维度。
func (s *QdrantStore) Dimension(context.Context) (int, error) {
	return s.dim, nil
}

// Count 返回精确的点数量。
func (s *QdrantStore) Count(ctx context.Context) (int64, error) {
	var resp struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}
	if err := s.call(ctx, "count", http.MethodPost, "/points/count", map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Close 无长连接需要释放。
func (s *QdrantStore) Close(context.Context) error { return nil }

func (s *QdrantStore) call(ctx context.Context, op, method, path string, in, out any) error {
	return qdrantErr(op, s.client.DoJSON(ctx, method, s.base+path, in, out))
}

// pointID maps a chunk id onto the UUID space Qdrant requires for string ids.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

// qdrantErr keeps deadlines distinguishable from outages. A client-side
// timeout or a 408/504 from Qdrant counts as a deadline.
func qdrantErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("qdrant %s: %w: %v", op, context.DeadlineExceeded, err)
	}
	var se *httpclient.StatusError
	if errors.As(err, &se) && (se.StatusCode == http.StatusRequestTimeout || se.StatusCode == http.StatusGatewayTimeout) {
		return fmt.Errorf("qdrant %s: %w: %v", op, context.DeadlineExceeded, err)
	}
	return unavailable("qdrant", op, err)
}

var _ VectorStore = (*QdrantStore)(nil)
