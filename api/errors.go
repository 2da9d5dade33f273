package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/calderw/bastion/pake"
	"github.com/calderw/bastion/store"
)

// maxBodySize caps request bodies. Protocol messages are a few hundred bytes;
// anything near the cap is garbage.
const maxBodySize = 64 * 1024

// authFailedMessage is the single body used for every login rejection. A
// wrong password, a missing or expired handshake, and an unknown user must
// be indistinguishable on the wire.
const authFailedMessage = "authentication failed"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeAuthFailed(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, authFailedMessage)
}

func (a *API) internalError(w http.ResponseWriter, msg string, err error) {
	a.logger.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, msg)
}

// decodeJSON reads and decodes a JSON request body, writing the 400 itself
// when the body is oversized, malformed, or carries trailing data.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, maxSize int64) (T, bool) {
	var v T
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSize))
	if err := dec.Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return v, false
	}
	if dec.More() {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return v, false
	}
	// Drain so the connection can be reused.
	io.Copy(io.Discard, r.Body)
	return v, true
}

// mapRegisterError translates registration-path errors. Login paths do not
// use this: their failures collapse into the uniform 401.
func (a *API) mapRegisterError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pake.ErrEngineRejected):
		writeError(w, http.StatusBadRequest, "malformed protocol message")
	case errors.Is(err, store.ErrAlreadyRegistered):
		writeError(w, http.StatusConflict, "user already registered")
	default:
		a.internalError(w, "registration failed", err)
	}
}
