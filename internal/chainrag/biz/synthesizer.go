package biz

import (
	"context"
	"strings"

	"github.com/kart-io/chainrag/pkg/llm"
)

const synthesisSystem = "You are a helpful assistant that provides concise and accurate answers based on given reasoning steps."

const synthesisPrompt = `Original task: {{question}}

Using ONLY the following reasoning process produced by a different model, provide your answer to the original task.
Base your answer solely on these logical steps and thought process, checked against the retrieved context.

Make sure to create a detailed but concise answer to the task.

Retrieved context:
{{context}}

Reasoning steps:
{{reasoning}}

Provide your direct answer to given task:`

// SynthesisConfig 合成阶段配置。
type SynthesisConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// DefaultSynthesisConfig 返回默认合成配置。
func DefaultSynthesisConfig() *SynthesisConfig {
	return &SynthesisConfig{
		Model:       "gpt-4o-mini",
		Temperature: 0.7,
		MaxTokens:   2048,
	}
}

// Answer 合成阶段的输出。
type Answer struct {
	Text  string
	Model string
	Usage llm.TokenUsage
}

// SynthesisStage 使用远端模型生成最终答案。
type SynthesisStage struct {
	provider llm.ChatProvider
	config   *SynthesisConfig
}

// NewSynthesisStage 创建合成阶段。
func NewSynthesisStage(provider llm.ChatProvider, config *SynthesisConfig) *SynthesisStage {
	if config == nil {
		config = DefaultSynthesisConfig()
	}
	return &SynthesisStage{provider: provider, config: config}
}

// Model 返回合成模型。
func (s *SynthesisStage) Model() string { return s.config.Model }

// Synthesize 基于问题、上下文与推理过程生成答案。空白答案返回 ErrEmptyResponse。
func (s *SynthesisStage) Synthesize(ctx context.Context, question, contextText, reasoning string) (*Answer, error) {
	prompt := strings.NewReplacer(
		"{{question}}", question,
		"{{context}}", contextText,
		"{{reasoning}}", reasoning,
	).Replace(synthesisPrompt)

	resp, err := s.provider.Generate(ctx, &llm.GenerateRequest{
		Model:       s.config.Model,
		System:      synthesisSystem,
		Prompt:      prompt,
		Temperature: s.config.Temperature,
		MaxTokens:   s.config.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return nil, llm.Empty(s.provider.Name(), "synthesize", "model returned an empty answer")
	}
	model := resp.Model
	if model == "" {
		model = s.config.Model
	}
	return &Answer{Text: text, Model: model, Usage: resp.TokenUsage}, nil
}
