// Package httpx holds the JSON plumbing shared by every handler: response
// encoding, the error envelope, and size-limited request decoding.
package httpx

import (
	"encoding/json"
	"io"
	"net/http"
)

// maxBodyBytes caps how much of a request body Decode will read. Every
// payload this API accepts fits comfortably under a megabyte.
const maxBodyBytes = 1 << 20

// ErrorResponse is the envelope for every non-2xx body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// JSON writes payload as a JSON response. Encoding happens before the header
// is written so a marshal failure can still produce a clean 500.
func JSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, `{"error":"encode_error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// JSONError writes the standard error envelope.
func JSONError(w http.ResponseWriter, status int, msg string, details any) {
	JSON(w, status, ErrorResponse{Error: msg, Details: details})
}

// Decode reads a JSON request body into dst, refusing bodies over
// maxBodyBytes.
func Decode(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
}
