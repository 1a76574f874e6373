package handler

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	"github.com/kart-io/version"

	apierrors "github.com/kart-io/chainrag/pkg/utils/errors"
	"github.com/kart-io/chainrag/pkg/utils/response"
)

const (
	readyTimeout     = 2 * time.Second
	modelListTimeout = 5 * time.Second
)

// Health is the liveness probe. It never touches dependencies.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// VersionResponse is the build information of the running binary.
type VersionResponse struct {
	GitVersion string `json:"git_version"`
	GitCommit  string `json:"git_commit,omitempty"`
	BuildDate  string `json:"build_date,omitempty"`
	GoVersion  string `json:"go_version,omitempty"`
	Platform   string `json:"platform,omitempty"`
}

// Version returns build information.
func (h *Handler) Version(c *gin.Context) {
	info := version.Get()
	c.JSON(http.StatusOK, VersionResponse{
		GitVersion: info.GitVersion,
		GitCommit:  info.GitCommit,
		BuildDate:  info.BuildDate,
		GoVersion:  info.GoVersion,
		Platform:   info.Platform,
	})
}

// Ready reports whether the vector store answers.
func (h *Handler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	if _, err := h.store.Count(ctx); err != nil {
		logger.Warnw("Readiness check failed", "store", h.store.Name(), "error", err.Error())
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "store": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// ModelsResponse groups models by the stage that can use them.
type ModelsResponse struct {
	Reasoning []string `json:"reasoning"`
	Synthesis []string `json:"synthesis"`
	// Installed lists everything the local runtime reports.
	Installed []string `json:"installed"`
}

// Models lists the selectable reasoning models. A runtime that cannot be
// reached yields empty lists rather than an error.
func (h *Handler) Models(c *gin.Context) {
	out := ModelsResponse{Reasoning: []string{}, Synthesis: []string{}, Installed: []string{}}
	if h.models == nil {
		response.OK(c, out)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), modelListTimeout)
	defer cancel()

	installed, err := h.models.ListModels(ctx)
	if err != nil {
		logger.Warnw("Failed to list models", "error", err.Error())
		response.OK(c, out)
		return
	}

	slices.Sort(installed)
	out.Installed = installed
	for _, m := range h.pipeline.ReasoningModels() {
		if slices.Contains(installed, m) {
			out.Reasoning = append(out.Reasoning, m)
		}
	}
	out.Synthesis = append(out.Synthesis, h.pipeline.SynthesisModel())
	response.OK(c, out)
}

// Stats reports collection size, admission and pipeline counters.
func (h *Handler) Stats(c *gin.Context) {
	count, err := h.store.Count(c.Request.Context())
	if err != nil {
		response.Fail(c, apierrors.ErrUpstreamUnavailable.WithCause(err))
		return
	}

	response.OK(c, gin.H{
		"store": gin.H{
			"backend":    h.store.Name(),
			"collection": h.store.Collection(),
			"chunks":     count,
		},
		"models": gin.H{
			"reasoning": h.pipeline.DefaultReasoningModel(),
			"synthesis": h.pipeline.SynthesisModel(),
		},
		"pool":     h.executor.Stats(),
		"breakers": h.pipeline.Breakers(),
		"metrics":  h.pipeline.Metrics().Stats(),
	})
}

// Metrics serves the Prometheus exposition of the pipeline metrics.
func (h *Handler) Metrics(c *gin.Context) {
	h.pipeline.Metrics().Handler().ServeHTTP(c.Writer, c.Request)
}
