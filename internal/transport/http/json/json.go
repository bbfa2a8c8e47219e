package json

import (
	"encoding/json"
	"fmt"
	"net/http"

	dErrors "consentire/pkg/domain-errors"
)

// WriteJSON encodes the response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		// best-effort fallback; don't override status for the caller
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// DecodeJSON decodes the request body into dst, returning a domain validation
// error on malformed input.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}
