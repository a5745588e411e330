package handler

import (
	"errors"
	"net/http"

	"github.com/chatmod/chatmod/internal/feedback"
	"github.com/chatmod/chatmod/internal/pipeline"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// ChatHandler serves test generations.
type ChatHandler struct {
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(p *pipeline.Pipeline, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		pipeline: p,
		logger:   logger,
	}
}

// testChatRequest is the POST /test-chat body.
type testChatRequest struct {
	Message   string                    `json:"message"`
	History   []pipeline.Turn           `json:"history,omitempty"`
	ChatID    string                    `json:"chatId,omitempty"`
	IsASA     bool                      `json:"isASA,omitempty"`
	ImageURLs []string                  `json:"imageUrls,omitempty"`
	Context   *feedback.ContextSnapshot `json:"context,omitempty"`
}

// TestChat generates a reply for the given message and conversation state.
func (h *ChatHandler) TestChat(w http.ResponseWriter, req bunrouter.Request) error {
	var body testChatRequest
	if err := decodeBody(req, &body); err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}

	if body.Message == "" && !body.IsASA {
		return writeError(w, http.StatusBadRequest, errors.New("message is required"))
	}

	result, err := h.pipeline.Reply(req.Context(), &pipeline.Request{
		Message:   body.Message,
		History:   body.History,
		ChatID:    body.ChatID,
		IsASA:     body.IsASA,
		ImageURLs: body.ImageURLs,
		Context:   body.Context,
	})
	if err != nil {
		h.logger.Error("Generation failed", zap.Error(err))

		return writeError(w, http.StatusInternalServerError, err)
	}

	return bunrouter.JSON(w, result)
}
