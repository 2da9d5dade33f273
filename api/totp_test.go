package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyTOTPCode_CurrentStep(t *testing.T) {
	secret, err := generateTOTPSecret()
	require.NoError(t, err)

	now := time.Now()
	code, err := totpCodeAt(secret, now)
	require.NoError(t, err)

	assert.True(t, verifyTOTPCode(secret, code, now))
}

func TestVerifyTOTPCode_AdjacentSteps(t *testing.T) {
	secret, err := generateTOTPSecret()
	require.NoError(t, err)
	now := time.Now()

	prev := mustCode(t, secret, now.Add(-totpPeriod*time.Second))
	next := mustCode(t, secret, now.Add(totpPeriod*time.Second))

	assert.True(t, verifyTOTPCode(secret, prev, now), "one step behind is within the window")
	assert.True(t, verifyTOTPCode(secret, next, now), "one step ahead is within the window")
}

func TestVerifyTOTPCode_OutsideWindow(t *testing.T) {
	secret, err := generateTOTPSecret()
	require.NoError(t, err)
	now := time.Now()

	stale := mustCode(t, secret, now.Add(-3*totpPeriod*time.Second))
	if stale == mustCode(t, secret, now) ||
		stale == mustCode(t, secret, now.Add(-totpPeriod*time.Second)) ||
		stale == mustCode(t, secret, now.Add(totpPeriod*time.Second)) {
		t.Skip("stale code collides with a code inside the window")
	}
	assert.False(t, verifyTOTPCode(secret, stale, now))
}

func mustCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totpCodeAt(secret, at)
	require.NoError(t, err)
	return code
}

func TestVerifyTOTPCode_RejectsMalformed(t *testing.T) {
	secret, err := generateTOTPSecret()
	require.NoError(t, err)
	now := time.Now()

	assert.False(t, verifyTOTPCode(secret, "", now))
	assert.False(t, verifyTOTPCode(secret, "12345", now))
	assert.False(t, verifyTOTPCode(secret, "1234567", now))
	assert.False(t, verifyTOTPCode(secret, "12345a", now))
}

func TestVerifyTOTPCode_NormalizesSpaces(t *testing.T) {
	secret, err := generateTOTPSecret()
	require.NoError(t, err)
	now := time.Now()

	code := mustCode(t, secret, now)
	spaced := code[:3] + " " + code[3:]
	assert.True(t, verifyTOTPCode(secret, spaced, now))
}

func TestOTPAuthURL(t *testing.T) {
	u := otpAuthURL("JBSWY3DPEHPK3PXP", "alice")
	assert.Contains(t, u, "otpauth://totp/")
	assert.Contains(t, u, "secret=JBSWY3DPEHPK3PXP")
	assert.Contains(t, u, "issuer=Bastion")
	assert.Contains(t, u, "digits=6")
	assert.Contains(t, u, "period=30")
}
