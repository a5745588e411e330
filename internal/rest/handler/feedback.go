package handler

import (
	"errors"
	"net/http"

	"github.com/chatmod/chatmod/internal/corpus"
	"github.com/chatmod/chatmod/internal/feedback"
	"github.com/chatmod/chatmod/internal/pipeline"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// FeedbackHandler serves the feedback ledger and its promotion paths.
type FeedbackHandler struct {
	ledger     *feedback.Ledger
	promoter   *feedback.Promoter
	reconciler *feedback.Reconciler
	corpus     *corpus.Store
	pipeline   *pipeline.Pipeline
	logger     *zap.Logger
}

// NewFeedbackHandler creates a new feedback handler.
func NewFeedbackHandler(
	ledger *feedback.Ledger, promoter *feedback.Promoter, reconciler *feedback.Reconciler,
	corpusStore *corpus.Store, p *pipeline.Pipeline, logger *zap.Logger,
) *FeedbackHandler {
	return &FeedbackHandler{
		ledger:     ledger,
		promoter:   promoter,
		reconciler: reconciler,
		corpus:     corpusStore,
		pipeline:   p,
		logger:     logger,
	}
}

// List returns all ledger entries, healing pending entries that were already
// promoted along the way.
func (h *FeedbackHandler) List(w http.ResponseWriter, req bunrouter.Request) error {
	ctx := req.Context()

	if _, err := h.promoter.SelfHeal(ctx); err != nil {
		h.logger.Warn("Feedback self-healing pass failed", zap.Error(err))
	}

	entries, err := h.ledger.List(ctx)
	if err != nil {
		h.logger.Error("Failed to load feedback ledger", zap.Error(err))

		return writeError(w, http.StatusInternalServerError, err)
	}

	if entries == nil {
		entries = []feedback.Entry{}
	}

	return bunrouter.JSON(w, entries)
}

// Get returns one ledger entry.
func (h *FeedbackHandler) Get(w http.ResponseWriter, req bunrouter.Request) error {
	entry, err := h.ledger.Get(req.Context(), req.Param("id"))
	if err != nil {
		return h.ledgerError(w, err)
	}

	return bunrouter.JSON(w, entry)
}

// createFeedbackRequest is the POST /feedback body.
type createFeedbackRequest struct {
	ChatID          string                    `json:"chatId,omitempty"`
	CustomerMessage string                    `json:"customerMessage"`
	AIResponse      string                    `json:"aiResponse"`
	IsASA           bool                      `json:"isASA,omitempty"`
	IsGenerated     bool                      `json:"isGenerated,omitempty"`
	Context         *feedback.ContextSnapshot `json:"context,omitempty"`
}

// Create records a pending entry manually.
func (h *FeedbackHandler) Create(w http.ResponseWriter, req bunrouter.Request) error {
	var body createFeedbackRequest
	if err := decodeBody(req, &body); err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}

	if body.AIResponse == "" {
		return writeError(w, http.StatusBadRequest, errors.New("aiResponse is required"))
	}

	if body.CustomerMessage == "" && !body.IsASA {
		return writeError(w, http.StatusBadRequest, errors.New("customerMessage is required"))
	}

	entry, err := h.ledger.Create(req.Context(), feedback.Entry{
		ChatID:          body.ChatID,
		CustomerMessage: body.CustomerMessage,
		AIResponse:      body.AIResponse,
		IsASA:           body.IsASA,
		IsGenerated:     body.IsGenerated,
		Context:         body.Context,
	})
	if err != nil {
		h.logger.Error("Failed to create feedback entry", zap.Error(err))

		return writeError(w, http.StatusInternalServerError, err)
	}

	w.WriteHeader(http.StatusCreated)

	return bunrouter.JSON(w, entry)
}

// updateFeedbackRequest is the PUT /feedback/:id body. A good or edited
// status is a judgment and triggers promotion; a bare situation is a
// correction and propagates to the corpus.
type updateFeedbackRequest struct {
	Status         feedback.Status `json:"status,omitempty"`
	EditedResponse string          `json:"editedResponse,omitempty"`
	Situation      string          `json:"situation,omitempty"`
	Reasoning      string          `json:"reasoning,omitempty"`
}

// Update judges or corrects a ledger entry.
func (h *FeedbackHandler) Update(w http.ResponseWriter, req bunrouter.Request) error {
	var body updateFeedbackRequest
	if err := decodeBody(req, &body); err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}

	ctx := req.Context()
	id := req.Param("id")

	if body.Status == feedback.StatusGood || body.Status == feedback.StatusEdited {
		entry, err := h.promoter.Judge(ctx, id, body.Status, body.EditedResponse)
		if err != nil {
			return h.ledgerError(w, err)
		}

		return bunrouter.JSON(w, entry)
	}

	entry, err := h.ledger.Get(ctx, id)
	if err != nil {
		return h.ledgerError(w, err)
	}

	if body.Reasoning != "" {
		entry.Reasoning = body.Reasoning
	}

	if body.Situation != "" && body.Situation != entry.Situation {
		entry.SetSituation(body.Situation)

		if _, err := h.reconciler.PropagateFromEntry(ctx, h.corpus, entry); err != nil {
			h.logger.Warn("Failed to propagate situation to corpus", zap.Error(err))
		}
	}

	if err := h.ledger.Update(ctx, entry); err != nil {
		return h.ledgerError(w, err)
	}

	return bunrouter.JSON(w, entry)
}

// Delete removes a ledger entry.
func (h *FeedbackHandler) Delete(w http.ResponseWriter, req bunrouter.Request) error {
	if err := h.ledger.Delete(req.Context(), req.Param("id")); err != nil {
		return h.ledgerError(w, err)
	}

	return bunrouter.JSON(w, bunrouter.H{"deleted": req.Param("id")})
}

// variationRequest is the POST /feedback/:id/generate-variations body.
type variationRequest struct {
	Count int `json:"count,omitempty"`
}

// GenerateVariations produces alternative replies for a feedback entry.
func (h *FeedbackHandler) GenerateVariations(w http.ResponseWriter, req bunrouter.Request) error {
	var body variationRequest
	if err := decodeBody(req, &body); err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}

	count := body.Count
	if count <= 0 {
		count = 3
	}

	ctx := req.Context()

	entry, err := h.ledger.Get(ctx, req.Param("id"))
	if err != nil {
		return h.ledgerError(w, err)
	}

	variations, err := h.pipeline.GenerateVariations(ctx, entry, count)
	if err != nil {
		h.logger.Error("Failed to generate variations", zap.Error(err))

		return writeError(w, http.StatusInternalServerError, err)
	}

	return bunrouter.JSON(w, bunrouter.H{"variations": variations})
}

// addVariationsRequest is the POST /feedback/:id/add-variations body.
type addVariationsRequest struct {
	Variations []string `json:"variations"`
}

// AddVariations appends chosen variations to the training corpus as
// generated records pointing back at the parent entry.
func (h *FeedbackHandler) AddVariations(w http.ResponseWriter, req bunrouter.Request) error {
	var body addVariationsRequest
	if err := decodeBody(req, &body); err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}

	if len(body.Variations) == 0 {
		return writeError(w, http.StatusBadRequest, errors.New("variations are required"))
	}

	ctx := req.Context()

	entry, err := h.ledger.Get(ctx, req.Param("id"))
	if err != nil {
		return h.ledgerError(w, err)
	}

	added := 0

	for _, variation := range body.Variations {
		if variation == "" {
			continue
		}

		var appendErr error

		if entry.IsASA {
			appendErr = h.corpus.AppendASA(ctx, corpus.ASAExample{
				CustomerType: "unbekannt",
				ASAMessage:   variation,
				Source:       corpus.SourceFeedbackGenerated,
				FeedbackID:   entry.ID,
			})
		} else {
			appendErr = h.corpus.Append(ctx, corpus.Example{
				CustomerMessage:   entry.CustomerMessage,
				ModeratorResponse: variation,
				Situation:         entry.Situation,
				Situations:        entry.Situations,
				Source:            corpus.SourceFeedbackGenerated,
				FeedbackID:        entry.ID,
			})
		}

		if appendErr != nil {
			h.logger.Error("Failed to add variation", zap.Error(appendErr))

			return writeError(w, http.StatusInternalServerError, appendErr)
		}

		added++
	}

	return bunrouter.JSON(w, bunrouter.H{"added": added})
}

// Stats returns learning statistics over the ledger.
func (h *FeedbackHandler) Stats(w http.ResponseWriter, req bunrouter.Request) error {
	stats, err := h.promoter.Stats(req.Context())
	if err != nil {
		h.logger.Error("Failed to compute feedback stats", zap.Error(err))

		return writeError(w, http.StatusInternalServerError, err)
	}

	return bunrouter.JSON(w, stats)
}

func (h *FeedbackHandler) ledgerError(w http.ResponseWriter, err error) error {
	switch {
	case errors.Is(err, feedback.ErrEntryNotFound):
		return writeError(w, http.StatusNotFound, err)
	case errors.Is(err, feedback.ErrAlreadyJudged):
		return writeError(w, http.StatusConflict, err)
	default:
		h.logger.Error("Feedback ledger operation failed", zap.Error(err))

		return writeError(w, http.StatusInternalServerError, err)
	}
}
