package biz

import (
	"errors"
	"slices"

	"github.com/kart-io/chainrag/internal/chainrag/store"
	apierrors "github.com/kart-io/chainrag/pkg/utils/errors"
	"github.com/kart-io/chainrag/pkg/validator"
)

// Query 一次查询，创建后不可变。
type Query struct {
	// Text 查询文本，去除空白后不能为空。
	Text string `json:"text" validate:"notblank,max=8000"`

	// K 检索块数量。
	K int `json:"k" validate:"min=1"`

	// ReasoningModel 本次查询使用的推理模型，为空时使用默认模型。
	ReasoningModel string `json:"reasoning_model,omitempty"`
}

// Source 回答引用的文档块，顺序与检索排名一致。
type Source struct {
	ID     string  `json:"id"`
	Source string  `json:"source"`
	Score  float32 `json:"score"`
}

// Response 查询结果。
type Response struct {
	Answer    string   `json:"answer"`
	Reasoning string   `json:"reasoning"`
	Sources   []Source `json:"sources"`
	// Context 实际送入模型的上下文块。
	Context string `json:"context"`

	ReasoningModel string `json:"reasoning_model"`
	SynthesisModel string `json:"synthesis_model"`
}

func sourcesOf(chunks []store.Chunk) []Source {
	out := make([]Source, len(chunks))
	for i, c := range chunks {
		out[i] = Source{ID: c.ID, Source: c.Source, Score: c.Score}
	}
	return out
}

// validateQuery 校验查询格式，失败时返回 ErrValidation。
func validateQuery(v *validator.Validator, q Query, maxK int, models []string) error {
	if err := v.Struct(q); err != nil {
		var verrs *validator.ValidationErrors
		if errors.As(err, &verrs) {
			return apierrors.ErrValidation.WithMessage(verrs.First()).WithCause(err)
		}
		return apierrors.ErrValidation.WithCause(err)
	}
	if q.K > maxK {
		return apierrors.ErrValidation.WithMessagef("k must be at most %d", maxK)
	}
	if q.ReasoningModel != "" && !slices.Contains(models, q.ReasoningModel) {
		return apierrors.ErrValidation.WithMessagef("reasoning model %q is not available", q.ReasoningModel)
	}
	return nil
}
