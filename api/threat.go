package api

import (
	"sync"
	"time"
)

// ThreatCategory ranks an advisory threat signal.
type ThreatCategory string

const (
	ThreatSafe     ThreatCategory = "safe"
	ThreatInfo     ThreatCategory = "info"
	ThreatWarning  ThreatCategory = "warning"
	ThreatCritical ThreatCategory = "critical"
)

// ThreatEvent is a point-in-time advisory signal. Only the latest event is
// retained; expired events decay back to the safe baseline.
type ThreatEvent struct {
	Category  ThreatCategory `json:"category"`
	Message   string         `json:"message"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

const (
	warningEventTTL  = 1 * time.Minute
	criticalEventTTL = 10 * time.Minute

	failureSpikeWindow    = 1 * time.Minute
	failureSpikeThreshold = 50
)

// threatMonitor keeps a latest-event register fed by audit events. Login
// attempts raise short-lived warnings; a spike of failures within the sliding
// window escalates to critical.
type threatMonitor struct {
	mu       sync.Mutex
	current  ThreatEvent
	hasEvent bool

	failures  []time.Time
	window    time.Duration
	threshold int
}

func newThreatMonitor() *threatMonitor {
	return &threatMonitor{
		window:    failureSpikeWindow,
		threshold: failureSpikeThreshold,
	}
}

// recordEvent inspects an audit event and updates the register.
func (m *threatMonitor) recordEvent(event AuditEvent) {
	if m == nil {
		return
	}
	switch event {
	case AuditLoginStarted:
		m.Raise(ThreatWarning, "login attempt in progress", warningEventTTL)
	case AuditLoginFailure, AuditTwoFactorFailure:
		m.recordFailure()
	case AuditRecordsExported:
		m.Raise(ThreatCritical, "bulk credential export detected", criticalEventTTL)
	}
}

func (m *threatMonitor) recordFailure() {
	m.mu.Lock()
	now := time.Now()
	m.failures = append(m.failures, now)
	cutoff := now.Add(-m.window)
	start := 0
	for start < len(m.failures) && m.failures[start].Before(cutoff) {
		start++
	}
	m.failures = m.failures[start:]
	spike := len(m.failures) >= m.threshold
	if spike {
		// Reset to avoid re-raising within the same spike.
		m.failures = m.failures[:0]
	}
	m.mu.Unlock()

	if spike {
		m.Raise(ThreatCritical, "login failure rate exceeds threshold", criticalEventTTL)
	} else {
		m.Raise(ThreatWarning, "failed authentication attempt", warningEventTTL)
	}
}

// Raise overwrites the register with a new event. A critical event is not
// displaced by a lower-severity one until it expires.
func (m *threatMonitor) Raise(category ThreatCategory, message string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if m.hasEvent && m.current.Category == ThreatCritical &&
		category != ThreatCritical && now.Before(m.current.ExpiresAt) {
		return
	}
	m.current = ThreatEvent{
		Category:  category,
		Message:   message,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	m.hasEvent = true
}

// Current returns the live event, or a safe baseline when none is set or the
// latest has expired.
func (m *threatMonitor) Current() ThreatEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasEvent || time.Now().After(m.current.ExpiresAt) {
		return ThreatEvent{Category: ThreatSafe}
	}
	return m.current
}
