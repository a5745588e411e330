package handler

import (
	"errors"
	"net/http"

	"github.com/chatmod/chatmod/internal/finetune"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// FineTuneHandler serves the fine-tuning lifecycle.
type FineTuneHandler struct {
	orchestrator *finetune.Orchestrator
	logger       *zap.Logger
}

// NewFineTuneHandler creates a new fine-tuning handler.
func NewFineTuneHandler(orchestrator *finetune.Orchestrator, logger *zap.Logger) *FineTuneHandler {
	return &FineTuneHandler{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// Retrain starts a fine-tuning job.
func (h *FineTuneHandler) Retrain(w http.ResponseWriter, req bunrouter.Request) error {
	state, err := h.orchestrator.Retrain(req.Context())
	if err != nil {
		switch {
		case errors.Is(err, finetune.ErrInsufficientData):
			return writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, finetune.ErrJobAlreadyRunning):
			return writeError(w, http.StatusConflict, err)
		default:
			h.logger.Error("Retrain failed", zap.Error(err))

			return writeError(w, http.StatusInternalServerError, err)
		}
	}

	return bunrouter.JSON(w, state)
}

// Status polls the in-flight job and returns the current state.
func (h *FineTuneHandler) Status(w http.ResponseWriter, req bunrouter.Request) error {
	state, err := h.orchestrator.Status(req.Context())
	if err != nil {
		h.logger.Error("Failed to read fine-tuning status", zap.Error(err))

		return writeError(w, http.StatusInternalServerError, err)
	}

	return bunrouter.JSON(w, state)
}

// Stats returns corpus statistics and threshold progress.
func (h *FineTuneHandler) Stats(w http.ResponseWriter, req bunrouter.Request) error {
	stats, err := h.orchestrator.Stats(req.Context())
	if err != nil {
		h.logger.Error("Failed to compute fine-tuning stats", zap.Error(err))

		return writeError(w, http.StatusInternalServerError, err)
	}

	return bunrouter.JSON(w, stats)
}

// Jobs lists recent fine-tuning jobs.
func (h *FineTuneHandler) Jobs(w http.ResponseWriter, req bunrouter.Request) error {
	jobs, err := h.orchestrator.Jobs(req.Context(), 10)
	if err != nil {
		h.logger.Error("Failed to list fine-tuning jobs", zap.Error(err))

		return writeError(w, http.StatusInternalServerError, err)
	}

	return bunrouter.JSON(w, jobs)
}

// ExportJSONL streams the current training corpus in the upload format.
func (h *FineTuneHandler) ExportJSONL(w http.ResponseWriter, req bunrouter.Request) error {
	data, err := h.orchestrator.Export(req.Context())
	if err != nil {
		h.logger.Error("Failed to export training data", zap.Error(err))

		return writeError(w, http.StatusInternalServerError, err)
	}

	w.Header().Set("Content-Type", "application/jsonl")
	w.Header().Set("Content-Disposition", `attachment; filename="training.jsonl"`)
	_, err = w.Write(data)

	return err
}

// Filtered returns the audit snapshot of the last safety-filter run.
func (h *FineTuneHandler) Filtered(w http.ResponseWriter, req bunrouter.Request) error {
	snapshot, err := h.orchestrator.LastFiltered(req.Context())
	if err != nil {
		h.logger.Error("Failed to read filter snapshot", zap.Error(err))

		return writeError(w, http.StatusInternalServerError, err)
	}

	if snapshot == nil {
		return bunrouter.JSON(w, bunrouter.H{})
	}

	return bunrouter.JSON(w, snapshot)
}
