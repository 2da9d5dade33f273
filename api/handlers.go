package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/calderw/bastion/pake"
	"github.com/calderw/bastion/store"
)

// RegisterInit handles POST /register-init. The exchange is stateless on the
// server side: the per-user blinding key is derived from long-term key
// material, so nothing needs to be parked between the two messages.
func (a *API) RegisterInit(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[RegisterInitRequest](w, r, maxBodySize)
	if !ok {
		return
	}
	if req.UserID == "" || len(req.Request) == 0 {
		writeError(w, http.StatusBadRequest, "user_id and request are required")
		return
	}

	var response []byte
	err := a.withCryptoSlot(r.Context(), func() error {
		var err error
		response, err = a.engine.RegisterStart(req.UserID, req.Request)
		return err
	})
	if err != nil {
		a.mapRegisterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RegisterInitResponse{Response: response})
}

// RegisterFinish handles POST /register-finish. It validates the finished
// registration record, optionally enrolls a TOTP second factor, and persists
// the envelope. The store rejects an existing user ID, so a failed put
// leaves nothing behind.
func (a *API) RegisterFinish(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[RegisterFinishRequest](w, r, maxBodySize)
	if !ok {
		return
	}
	if req.UserID == "" || len(req.Record) == 0 {
		writeError(w, http.StatusBadRequest, "user_id and record are required")
		return
	}

	var envelope []byte
	err := a.withCryptoSlot(r.Context(), func() error {
		var err error
		envelope, err = a.engine.SealEnvelope(req.UserID, req.Record)
		return err
	})
	if err != nil {
		a.mapRegisterError(w, err)
		return
	}

	rec := store.Record{
		Envelope:  envelope,
		CreatedAt: time.Now().UTC(),
	}
	resp := RegisterFinishResponse{Success: true}
	if req.EnableTOTP {
		secret, err := generateTOTPSecret()
		if err != nil {
			a.internalError(w, "failed to generate second-factor secret", err)
			return
		}
		rec.TOTPEnabled = true
		rec.TOTPSecret = secret
		resp.TOTPSecret = secret
		resp.OTPAuthURL = otpAuthURL(secret, req.UserID)
	}

	if err := a.store.Put(req.UserID, &rec); err != nil {
		a.mapRegisterError(w, err)
		return
	}

	a.audit.logEvent(AuditRegister, r, req.UserID)
	if req.EnableTOTP {
		a.audit.logEvent(AuditTwoFactorEnabled, r, req.UserID)
	}
	writeJSON(w, http.StatusOK, resp)
}

// LoginInit handles POST /login-init. An unknown user ID runs the exchange
// against a decoy envelope derived from the server key, so the response is
// indistinguishable from a registered user's; the attempt can only fail
// later, the same way a wrong password does.
func (a *API) LoginInit(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[LoginInitRequest](w, r, maxBodySize)
	if !ok {
		return
	}
	if req.UserID == "" || len(req.Request) == 0 {
		writeError(w, http.StatusBadRequest, "user_id and request are required")
		return
	}
	started := time.Now()

	envelope, err := a.lookupEnvelope(req.UserID)
	if err != nil {
		a.internalError(w, "failed to load credential record", err)
		return
	}

	var response []byte
	var state *pake.LoginState
	err = a.withCryptoSlot(r.Context(), func() error {
		var err error
		response, state, err = a.engine.LoginStart(req.UserID, envelope, req.Request)
		return err
	})
	if err != nil {
		a.audit.logFailure(AuditLoginFailure, r, "malformed login request",
			slog.String("user_id", req.UserID))
		a.padToFloor(started)
		writeAuthFailed(w)
		return
	}

	a.pending.Put(req.UserID, state)
	// A fresh handshake supersedes everything in flight for the user,
	// including a session key still waiting on its second factor.
	a.provisional.Drop(req.UserID)
	a.audit.logEvent(AuditLoginStarted, r, req.UserID)
	writeJSON(w, http.StatusOK, LoginInitResponse{Response: response})
}

// lookupEnvelope returns the stored envelope for the user, or the
// deterministic decoy when no record exists.
func (a *API) lookupEnvelope(userID string) ([]byte, error) {
	rec, err := a.store.Get(userID)
	if errors.Is(err, store.ErrNotFound) {
		return a.engine.DecoyEnvelope(userID), nil
	}
	if err != nil {
		return nil, err
	}
	return rec.Envelope, nil
}

// LoginFinish handles POST /login-finish. The pending handshake is consumed
// whether verification succeeds or not, and every rejection shares one status,
// one body, and one minimum duration.
func (a *API) LoginFinish(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[LoginFinishRequest](w, r, maxBodySize)
	if !ok {
		return
	}
	if req.UserID == "" || len(req.Finish) == 0 {
		writeError(w, http.StatusBadRequest, "user_id and finish are required")
		return
	}
	started := time.Now()

	state := a.pending.Take(req.UserID)
	if state == nil {
		a.audit.logFailure(AuditLoginFailure, r, "no pending handshake",
			slog.String("user_id", req.UserID))
		a.padToFloor(started)
		writeAuthFailed(w)
		return
	}

	var sessionKey []byte
	err := a.withCryptoSlot(r.Context(), func() error {
		var err error
		sessionKey, err = a.engine.LoginFinish(state, req.Finish)
		return err
	})
	if err != nil {
		a.audit.logFailure(AuditLoginFailure, r, "verification failed",
			slog.String("user_id", req.UserID))
		a.padToFloor(started)
		writeAuthFailed(w)
		return
	}

	rec, err := a.store.Get(req.UserID)
	if err != nil {
		// The handshake only verifies against a real envelope, so a missing
		// record here means it was removed mid-flight. Reject uniformly.
		a.audit.logFailure(AuditLoginFailure, r, "record unavailable",
			slog.String("user_id", req.UserID))
		a.padToFloor(started)
		writeAuthFailed(w)
		return
	}

	if rec.TOTPEnabled {
		ref := a.provisional.Put(req.UserID, sessionKey)
		a.audit.logEvent(AuditTwoFactorRequired, r, req.UserID)
		writeJSON(w, http.StatusOK, LoginFinishResponse{
			Success:              true,
			SecondFactorRequired: true,
			ProvisionalRef:       ref,
		})
		return
	}

	a.audit.logEvent(AuditLoginSuccess, r, req.UserID)
	writeJSON(w, http.StatusOK, LoginFinishResponse{
		Success:    true,
		SessionKey: sessionKey,
	})
}

// VerifyTwoFactor handles POST /verify-2fa. Failures are reported in the
// body with a 200 status; the response never reveals whether a provisional
// key existed. The provisional key is consumed on the first attempt, so a
// wrong code forces a full new handshake.
func (a *API) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[VerifyTwoFactorRequest](w, r, maxBodySize)
	if !ok {
		return
	}
	if req.UserID == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "user_id and code are required")
		return
	}

	sessionKey := a.provisional.Take(req.UserID)
	if sessionKey == nil {
		a.audit.logFailure(AuditTwoFactorFailure, r, "no provisional key",
			slog.String("user_id", req.UserID))
		writeJSON(w, http.StatusOK, VerifyTwoFactorResponse{Success: false})
		return
	}

	rec, err := a.store.Get(req.UserID)
	if err != nil || !rec.TOTPEnabled || !verifyTOTPCode(rec.TOTPSecret, req.Code, time.Now()) {
		a.audit.logFailure(AuditTwoFactorFailure, r, "invalid code",
			slog.String("user_id", req.UserID))
		writeJSON(w, http.StatusOK, VerifyTwoFactorResponse{Success: false})
		return
	}

	a.audit.logEvent(AuditTwoFactorSuccess, r, req.UserID)
	a.audit.logEvent(AuditLoginSuccess, r, req.UserID)
	writeJSON(w, http.StatusOK, VerifyTwoFactorResponse{
		Success:    true,
		SessionKey: sessionKey,
	})
}

// ExportRecords handles GET /export-records, mounted only when debug export
// is enabled. Dumping the credential store is the breach scenario the threat
// register exists for, so the export itself raises the critical event.
func (a *API) ExportRecords(w http.ResponseWriter, r *http.Request) {
	records, err := a.store.List()
	if err != nil {
		a.internalError(w, "failed to export records", err)
		return
	}
	a.audit.log(AuditRecordsExported, r, slog.Int("record_count", len(records)))
	writeJSON(w, http.StatusOK, ExportRecordsResponse{Records: records})
}

// SystemStatus handles GET /system-status. It never fails and is never
// rate-limited.
func (a *API) SystemStatus(w http.ResponseWriter, r *http.Request) {
	event := a.monitor.Current()
	writeJSON(w, http.StatusOK, SystemStatusResponse{
		Category: string(event.Category),
		Message:  event.Message,
	})
}

// Health handles GET /health.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// padToFloor sleeps until at least the timing floor has elapsed since
// started.
func (a *API) padToFloor(started time.Time) {
	if remaining := a.timingFloor - time.Since(started); remaining > 0 {
		time.Sleep(remaining)
	}
}
