package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/chainrag/internal/chainrag/biz"
	apierrors "github.com/kart-io/chainrag/pkg/utils/errors"
	"github.com/kart-io/chainrag/pkg/utils/response"
)

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	Text string `json:"text"`
	// K defaults to the configured retrieval depth when omitted.
	K              *int   `json:"k"`
	ReasoningModel string `json:"reasoning_model"`
}

// Query answers a question through the full pipeline.
func (h *Handler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Fail(c, apierrors.ErrRequestTooLarge)
			return
		}
		response.Fail(c, apierrors.ErrValidation.WithMessage("malformed request body").WithCause(err))
		return
	}

	q := biz.Query{
		Text:           req.Text,
		K:              h.pipeline.DefaultK(),
		ReasoningModel: req.ReasoningModel,
	}
	if req.K != nil {
		q.K = *req.K
	}

	resp, err := h.executor.Answer(c.Request.Context(), q)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, resp)
}
