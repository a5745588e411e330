package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/chatmod/chatmod/internal/corpus"
	"github.com/chatmod/chatmod/internal/feedback"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// TrainingHandler serves the training corpus.
type TrainingHandler struct {
	corpus     *corpus.Store
	reconciler *feedback.Reconciler
	logger     *zap.Logger
}

// NewTrainingHandler creates a new training-data handler.
func NewTrainingHandler(corpusStore *corpus.Store, reconciler *feedback.Reconciler, logger *zap.Logger) *TrainingHandler {
	return &TrainingHandler{
		corpus:     corpusStore,
		reconciler: reconciler,
		logger:     logger,
	}
}

// ListExamples returns all training examples.
func (h *TrainingHandler) ListExamples(w http.ResponseWriter, req bunrouter.Request) error {
	examples, err := h.corpus.Examples(req.Context())
	if err != nil {
		h.logger.Error("Failed to load training examples", zap.Error(err))

		return writeError(w, http.StatusInternalServerError, err)
	}

	if examples == nil {
		examples = []corpus.Example{}
	}

	return bunrouter.JSON(w, examples)
}

// AddExample appends a manual training example.
func (h *TrainingHandler) AddExample(w http.ResponseWriter, req bunrouter.Request) error {
	var example corpus.Example
	if err := decodeBody(req, &example); err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}

	if example.CustomerMessage == "" || example.ModeratorResponse == "" {
		return writeError(w, http.StatusBadRequest,
			errors.New("customerMessage and moderatorResponse are required"))
	}

	if example.Source == "" {
		example.Source = corpus.SourceManual
	}

	if err := h.corpus.Append(req.Context(), example); err != nil {
		h.logger.Error("Failed to add training example", zap.Error(err))

		return writeError(w, http.StatusInternalServerError, err)
	}

	w.WriteHeader(http.StatusCreated)

	return bunrouter.JSON(w, &example)
}

// UpdateExample replaces the example at the index. Situation corrections
// propagate back to the feedback ledger.
func (h *TrainingHandler) UpdateExample(w http.ResponseWriter, req bunrouter.Request) error {
	index, err := indexParam(req)
	if err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}

	var example corpus.Example
	if err := decodeBody(req, &example); err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}

	ctx := req.Context()

	if err := h.corpus.Update(ctx, index, example); err != nil {
		return h.corpusError(w, err)
	}

	example.Normalize()

	if changed, err := h.reconciler.PropagateFromCorpus(ctx, &example); err != nil {
		h.logger.Warn("Failed to propagate situation to feedback ledger", zap.Error(err))
	} else if changed > 0 {
		h.logger.Info("Propagated situation correction", zap.Int("entries", changed))
	}

	return bunrouter.JSON(w, &example)
}

// DeleteExample removes the example at the index.
func (h *TrainingHandler) DeleteExample(w http.ResponseWriter, req bunrouter.Request) error {
	index, err := indexParam(req)
	if err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}

	if err := h.corpus.Delete(req.Context(), index); err != nil {
		return h.corpusError(w, err)
	}

	return bunrouter.JSON(w, bunrouter.H{"deleted": index})
}

// ListASA returns all reactivation examples.
func (h *TrainingHandler) ListASA(w http.ResponseWriter, req bunrouter.Request) error {
	examples, err := h.corpus.ASAExamples(req.Context())
	if err != nil {
		h.logger.Error("Failed to load ASA examples", zap.Error(err))

		return writeError(w, http.StatusInternalServerError, err)
	}

	if examples == nil {
		examples = []corpus.ASAExample{}
	}

	return bunrouter.JSON(w, examples)
}

// AddASA appends a reactivation example.
func (h *TrainingHandler) AddASA(w http.ResponseWriter, req bunrouter.Request) error {
	var example corpus.ASAExample
	if err := decodeBody(req, &example); err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}

	if example.ASAMessage == "" {
		return writeError(w, http.StatusBadRequest, errors.New("asaMessage is required"))
	}

	if example.Source == "" {
		example.Source = corpus.SourceManual
	}

	if err := h.corpus.AppendASA(req.Context(), example); err != nil {
		h.logger.Error("Failed to add ASA example", zap.Error(err))

		return writeError(w, http.StatusInternalServerError, err)
	}

	w.WriteHeader(http.StatusCreated)

	return bunrouter.JSON(w, &example)
}

// UpdateASA replaces the reactivation example at the index.
func (h *TrainingHandler) UpdateASA(w http.ResponseWriter, req bunrouter.Request) error {
	index, err := indexParam(req)
	if err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}

	var example corpus.ASAExample
	if err := decodeBody(req, &example); err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}

	if err := h.corpus.UpdateASA(req.Context(), index, example); err != nil {
		return h.corpusError(w, err)
	}

	return bunrouter.JSON(w, &example)
}

// DeleteASA removes the reactivation example at the index.
func (h *TrainingHandler) DeleteASA(w http.ResponseWriter, req bunrouter.Request) error {
	index, err := indexParam(req)
	if err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}

	if err := h.corpus.DeleteASA(req.Context(), index); err != nil {
		return h.corpusError(w, err)
	}

	return bunrouter.JSON(w, bunrouter.H{"deleted": index})
}

func (h *TrainingHandler) corpusError(w http.ResponseWriter, err error) error {
	if errors.Is(err, corpus.ErrIndexOutOfRange) {
		return writeError(w, http.StatusNotFound, err)
	}

	h.logger.Error("Training corpus operation failed", zap.Error(err))

	return writeError(w, http.StatusInternalServerError, err)
}

func indexParam(req bunrouter.Request) (int, error) {
	index, err := strconv.Atoi(req.Param("index"))
	if err != nil {
		return 0, errors.New("index must be a number")
	}

	return index, nil
}
