package biz

import (
	"context"
	"regexp"
	"strings"

	"github.com/kart-io/chainrag/pkg/llm"
)

const reasoningPrompt = `Context information:
{{context}}

I want you to ONLY show your reasoning content about how to carry out the task using the given context.
Focus on analyzing the task and breaking down how you would approach it using the context provided.
DO NOT provide any final answer or conclusion.

Task: {{question}}`

var (
	reasoningLabel = regexp.MustCompile(`(?i)^(?:reasoning process:|reasoning:)\s*`)
	answerMarker   = regexp.MustCompile(`(?i)\n(?:answer:|response:|final answer:)`)
	thinkTag       = regexp.MustCompile(`(?i)</?think>`)
)

// ReasoningTrace 推理阶段的输出，只在一次查询内存在。
type ReasoningTrace struct {
	Text  string
	Model string
	Usage llm.TokenUsage
}

// ReasoningConfig 推理阶段配置。
type ReasoningConfig struct {
	// Model 默认推理模型。
	Model       string
	System      string
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// DefaultReasoningConfig 返回默认推理配置。
func DefaultReasoningConfig() *ReasoningConfig {
	return &ReasoningConfig{
		Model:       "deepseek-r1:7b",
		Temperature: 0.7,
		TopP:        0.9,
		MaxTokens:   2048,
	}
}

// ReasoningStage 使用本地模型生成推理过程。
type ReasoningStage struct {
	provider llm.ChatProvider
	config   *ReasoningConfig
}

// NewReasoningStage 创建推理阶段。
func NewReasoningStage(provider llm.ChatProvider, config *ReasoningConfig) *ReasoningStage {
	if config == nil {
		config = DefaultReasoningConfig()
	}
	return &ReasoningStage{provider: provider, config: config}
}

// Model 返回默认推理模型。
func (s *ReasoningStage) Model() string { return s.config.Model }

// Reason 生成推理过程。model 为空时使用默认模型。清理后为空时返回 ErrEmptyResponse。
func (s *ReasoningStage) Reason(ctx context.Context, question, contextText, model string) (*ReasoningTrace, error) {
	if model == "" {
		model = s.config.Model
	}

	prompt := strings.NewReplacer(
		"{{context}}", contextText,
		"{{question}}", question,
	).Replace(reasoningPrompt)

	resp, err := s.provider.Generate(ctx, &llm.GenerateRequest{
		Model:       model,
		System:      s.config.System,
		Prompt:      prompt,
		Temperature: s.config.Temperature,
		TopP:        s.config.TopP,
		MaxTokens:   s.config.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	text := extractReasoning(resp.Content)
	if text == "" {
		return nil, llm.Empty(s.provider.Name(), "reason", "model "+model+" returned no reasoning")
	}
	if resp.Model != "" {
		model = resp.Model
	}
	return &ReasoningTrace{Text: text, Model: model, Usage: resp.TokenUsage}, nil
}

// extractReasoning keeps only the reasoning part of a model reply.
func extractReasoning(text string) string {
	text = thinkTag.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	text = reasoningLabel.ReplaceAllString(text, "")
	if loc := answerMarker.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}
	return strings.TrimSpace(text)
}
