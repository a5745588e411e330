package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/uptrace/bunrouter"
)

// errorResponse is the JSON error shape of every endpoint.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError renders {"error": ...} with the given status code.
func writeError(w http.ResponseWriter, status int, err error) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	return sonic.ConfigDefault.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

// decodeBody parses the JSON request body into v.
func decodeBody(req bunrouter.Request, v any) error {
	if req.Body == nil {
		return errors.New("missing request body")
	}

	if err := sonic.ConfigDefault.NewDecoder(req.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}

	return nil
}
