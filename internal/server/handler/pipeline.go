package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// PassRunner triggers a single aggregation pass on demand.
type PassRunner interface {
	RunPass(ctx context.Context) int
}

// PipelineHandler exposes manual control over the aggregation pipeline.
type PipelineHandler struct {
	runner PassRunner
	logger *slog.Logger
}

func NewPipelineHandler(runner PassRunner, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{runner: runner, logger: logger}
}

// TriggerPass runs one aggregation pass synchronously and reports how long
// it took.
// POST /api/pipeline/trigger
func (h *PipelineHandler) TriggerPass(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	applied := h.runner.RunPass(r.Context())

	h.logger.InfoContext(r.Context(), "handler: manual pass triggered",
		slog.Int("snapshots", applied),
	)
	writeData(w, http.StatusOK, map[string]any{
		"status":     "completed",
		"snapshots":  applied,
		"durationMs": time.Since(start).Milliseconds(),
	})
}
