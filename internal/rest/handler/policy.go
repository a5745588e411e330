package handler

import (
	"net/http"

	"github.com/chatmod/chatmod/internal/policy"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// PolicyHandler serves the moderation rules.
type PolicyHandler struct {
	policy *policy.Store
	logger *zap.Logger
}

// NewPolicyHandler creates a new policy handler.
func NewPolicyHandler(policyStore *policy.Store, logger *zap.Logger) *PolicyHandler {
	return &PolicyHandler{
		policy: policyStore,
		logger: logger,
	}
}

// GetRules returns the current policy configuration, defaults merged.
func (h *PolicyHandler) GetRules(w http.ResponseWriter, req bunrouter.Request) error {
	cfg, err := h.policy.Get(req.Context())
	if err != nil {
		h.logger.Error("Failed to load rules", zap.Error(err))

		return writeError(w, http.StatusInternalServerError, err)
	}

	return bunrouter.JSON(w, cfg)
}

// PutRules replaces the policy configuration. A failed authoritative write
// still updates the local mirror and cache; the response carries a warning
// instead of rolling back.
func (h *PolicyHandler) PutRules(w http.ResponseWriter, req bunrouter.Request) error {
	var cfg policy.Config
	if err := decodeBody(req, &cfg); err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}

	warning := ""

	if err := h.policy.Save(req.Context(), &cfg); err != nil {
		h.logger.Warn("Rules saved locally but not to the authoritative store", zap.Error(err))
		warning = err.Error()
	}

	return bunrouter.JSON(w, bunrouter.H{
		"rules":   &cfg,
		"warning": warning,
	})
}
