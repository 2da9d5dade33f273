package api

import "github.com/calderw/bastion/store"

// Byte-slice fields travel as base64 strings over JSON; both halves of the
// protocol treat them as opaque blobs.

// RegisterInitRequest is the JSON body for POST /register-init.
type RegisterInitRequest struct {
	UserID  string `json:"user_id"`
	Request []byte `json:"request"`
}

// RegisterInitResponse is returned from POST /register-init.
type RegisterInitResponse struct {
	Response []byte `json:"response"`
}

// RegisterFinishRequest is the JSON body for POST /register-finish.
type RegisterFinishRequest struct {
	UserID     string `json:"user_id"`
	Record     []byte `json:"record"`
	EnableTOTP bool   `json:"enable_totp,omitempty"`
}

// RegisterFinishResponse is returned from POST /register-finish. The TOTP
// fields are present only when enrollment was requested.
type RegisterFinishResponse struct {
	Success    bool   `json:"success"`
	TOTPSecret string `json:"totp_secret,omitempty"`
	OTPAuthURL string `json:"otpauth_url,omitempty"`
}

// LoginInitRequest is the JSON body for POST /login-init.
type LoginInitRequest struct {
	UserID  string `json:"user_id"`
	Request []byte `json:"request"`
}

// LoginInitResponse is returned from POST /login-init.
type LoginInitResponse struct {
	Response []byte `json:"response"`
}

// LoginFinishRequest is the JSON body for POST /login-finish.
type LoginFinishRequest struct {
	UserID string `json:"user_id"`
	Finish []byte `json:"finish"`
}

// LoginFinishResponse is returned from POST /login-finish. Exactly one of
// SessionKey or ProvisionalRef is set on success: SessionKey when the account
// has no second factor, ProvisionalRef when a TOTP code must still be
// presented to /verify-2fa.
type LoginFinishResponse struct {
	Success              bool   `json:"success"`
	SessionKey           []byte `json:"session_key,omitempty"`
	SecondFactorRequired bool   `json:"second_factor_required,omitempty"`
	ProvisionalRef       string `json:"provisional_ref,omitempty"`
}

// VerifyTwoFactorRequest is the JSON body for POST /verify-2fa.
type VerifyTwoFactorRequest struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
}

// VerifyTwoFactorResponse is returned from POST /verify-2fa. Failure is
// reported in the body, not the status code, so the response shape never
// reveals whether a provisional key existed.
type VerifyTwoFactorResponse struct {
	Success    bool   `json:"success"`
	SessionKey []byte `json:"session_key,omitempty"`
}

// SystemStatusResponse is returned from GET /system-status.
type SystemStatusResponse struct {
	Category string `json:"category"`
	Message  string `json:"message,omitempty"`
}

// ExportRecordsResponse is returned from GET /export-records when the debug
// export route is mounted.
type ExportRecordsResponse struct {
	Records map[string]*store.Record `json:"records"`
}

// HealthResponse is returned from GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is returned for all error cases.
type ErrorResponse struct {
	Error string `json:"error"`
}
