// Package ollama 对接本地 Ollama 服务，提供嵌入、单轮生成与模型列表。
package ollama

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kart-io/chainrag/pkg/llm"
	"github.com/kart-io/chainrag/pkg/utils/httpclient"
)

// ProviderName 注册名。
const ProviderName = "ollama"

func init() {
	llm.RegisterProvider(ProviderName, NewProvider)
}

var (
	_ llm.Provider    = (*Provider)(nil)
	_ llm.ModelLister = (*Provider)(nil)
)

// Config Ollama 配置。
type Config struct {
	BaseURL    string
	EmbedModel string
	ChatModel  string
	// Timeout 单次 HTTP 请求上限。
	Timeout time.Duration
	// KeepAlive 调用后模型驻留时长，0 使用服务端默认值。
	KeepAlive time.Duration
}

// DefaultConfig 返回本机默认配置。
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "http://localhost:11434",
		EmbedModel: "nomic-embed-text",
		ChatModel:  "deepseek-r1:7b",
		Timeout:    2 * time.Minute,
	}
}

// Provider Ollama 供应商。
type Provider struct {
	config *Config
	client *httpclient.Client
}

// NewProvider 从配置 map 创建供应商，缺省或零值项使用 DefaultConfig。
func NewProvider(m map[string]any) (llm.Provider, error) {
	cfg := DefaultConfig()
	llm.ConfigValue(m, "base_url", &cfg.BaseURL)
	llm.ConfigValue(m, "embed_model", &cfg.EmbedModel)
	llm.ConfigValue(m, "chat_model", &cfg.ChatModel)
	llm.ConfigValue(m, "timeout", &cfg.Timeout)
	llm.ConfigValue(m, "keep_alive", &cfg.KeepAlive)
	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig 使用结构化配置创建供应商。
func NewProviderWithConfig(cfg *Config) *Provider {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Provider{config: cfg, client: httpclient.NewClient(cfg.Timeout)}
}

// Name 返回 "ollama"。
func (p *Provider) Name() string { return ProviderName }

func (p *Provider) keepAlive() string {
	if p.config.KeepAlive <= 0 {
		return ""
	}
	return p.config.KeepAlive.String()
}

func (p *Provider) call(ctx context.Context, op, method, path string, body, out any) error {
	if err := p.client.DoJSON(ctx, method, p.config.BaseURL+path, body, out); err != nil {
		return llm.Classify(ProviderName, op, err)
	}
	return nil
}

type embedRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	KeepAlive string   `json:"keep_alive,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed 调用 /api/embed。数量不符或出现空向量视为空结果。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var resp embedResponse
	req := embedRequest{Model: p.config.EmbedModel, Input: texts, KeepAlive: p.keepAlive()}
	if err := p.call(ctx, "embed", http.MethodPost, "/api/embed", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, llm.Empty(ProviderName, "embed", "embedding count does not match input count")
	}
	for _, v := range resp.Embeddings {
		if len(v) == 0 {
			return nil, llm.Empty(ProviderName, "embed", "empty embedding vector")
		}
	}
	return resp.Embeddings, nil
}

// EmbedSingle 嵌入单个文本。
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

type generateOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateRequest struct {
	Model     string           `json:"model"`
	Prompt    string           `json:"prompt"`
	System    string           `json:"system,omitempty"`
	Stream    bool             `json:"stream"`
	KeepAlive string           `json:"keep_alive,omitempty"`
	Options   *generateOptions `json:"options,omitempty"`
}

type generateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Generate 调用 /api/generate，非流式。返回原始文本，可用性由调用方判断。
func (p *Provider) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	body := generateRequest{
		Model:     req.Model,
		Prompt:    req.Prompt,
		System:    req.System,
		KeepAlive: p.keepAlive(),
	}
	if body.Model == "" {
		body.Model = p.config.ChatModel
	}
	if req.Temperature > 0 || req.TopP > 0 || req.MaxTokens > 0 {
		body.Options = &generateOptions{Temperature: req.Temperature, TopP: req.TopP, NumPredict: req.MaxTokens}
	}

	var resp generateResponse
	if err := p.call(ctx, "generate", http.MethodPost, "/api/generate", body, &resp); err != nil {
		return nil, err
	}
	return &llm.GenerateResponse{
		Content: resp.Response,
		Model:   resp.Model,
		TokenUsage: llm.TokenUsage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}, nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels 列出本地已拉取的模型，用于推理模型选择。
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	var resp tagsResponse
	if err := p.call(ctx, "list_models", http.MethodGet, "/api/tags", nil, &resp); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Ping 通过列出模型检查服务可达。
func (p *Provider) Ping(ctx context.Context) error {
	_, err := p.ListModels(ctx)
	return err
}
