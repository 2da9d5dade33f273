package api

// Hooks for the external test package.
var TOTPCodeAt = totpCodeAt
