package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/chainrag/internal/chainrag/ingest"
	apierrors "github.com/kart-io/chainrag/pkg/utils/errors"
	"github.com/kart-io/chainrag/pkg/utils/response"
)

// Documents lists the ingestible files under the data directory.
func (h *Handler) Documents(c *gin.Context) {
	if h.dataDir == "" {
		response.OK(c, gin.H{"documents": []string{}})
		return
	}

	files, err := ingest.ListFiles(h.dataDir)
	if err != nil {
		response.Fail(c, apierrors.ErrInternal.WithCause(err))
		return
	}
	if files == nil {
		files = []string{}
	}
	response.OK(c, gin.H{"documents": files})
}

// Ingest re-indexes the data directory. Only one run is allowed at a time.
func (h *Handler) Ingest(c *gin.Context) {
	if h.indexer == nil || h.dataDir == "" {
		response.Fail(c, apierrors.ErrServiceUnavailable.WithMessage("Ingestion is not enabled"))
		return
	}
	if !h.ingesting.CompareAndSwap(false, true) {
		response.Fail(c, apierrors.ErrTooManyRequests.WithMessage("Ingestion is already running"))
		return
	}
	defer h.ingesting.Store(false)

	report, err := h.indexer.IndexDir(c.Request.Context(), h.dataDir)
	if err != nil {
		logger.Errorw("Ingestion request failed", "dir", h.dataDir, "error", err.Error())
		response.Fail(c, apierrors.ErrInternal.WithMessage("Ingestion failed").WithCause(err))
		return
	}
	response.OK(c, report)
}
