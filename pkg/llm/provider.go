// Package llm 定义查询流水线使用的模型供应商接口。
//
// 嵌入、推理、合成三类调用各自按名称从注册表创建供应商，因此本地推理模型
// 与远端合成模型可以来自不同的供应商。供应商实现只做单次调用，不在内部
// 重试；重试、超时和熔断由调用方统一处理。
package llm

import "context"

// EmbeddingProvider 文本向量化。
type EmbeddingProvider interface {
	// Embed 返回的向量顺序与 texts 一致。
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// ChatProvider 单轮文本生成。
type ChatProvider interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
	Name() string
}

// ModelLister 能列出本地已安装模型的供应商实现此接口。
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Provider 同时提供嵌入与生成。
type Provider interface {
	EmbeddingProvider
	ChatProvider
}

// GenerateRequest 单轮生成请求。Model 为空时使用供应商的默认模型。
type GenerateRequest struct {
	Model  string
	System string
	Prompt string

	Temperature float64
	TopP        float64
	MaxTokens   int
}

// GenerateResponse 单轮生成结果。Model 为实际应答的模型。
type GenerateResponse struct {
	Content    string
	Model      string
	TokenUsage TokenUsage
}

// TokenUsage 供应商未返回用量时为零值。
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
