package monitor

import (
	"sync"
	"time"
)

// MaxConsecutiveErrors is the number of failed reloads tolerated before the
// server reports itself degraded.
const MaxConsecutiveErrors = 3

// ReloadMonitor tracks the health of the periodic input reload.
type ReloadMonitor struct {
	// StaleAfter marks the data stale when no reload succeeded for that
	// long. Zero disables the check.
	StaleAfter time.Duration

	mu                sync.RWMutex
	lastSuccess       time.Time
	lastAttempt       time.Time
	lastDuration      time.Duration
	reloads           int
	consecutiveErrors int
	lastError         string
}

// RecordSuccess records a successful reload that took d.
func (m *ReloadMonitor) RecordSuccess(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.lastSuccess = now
	m.lastAttempt = now
	m.lastDuration = d
	m.reloads++
	m.consecutiveErrors = 0
	m.lastError = ""
}

// RecordFailure records a failed reload.
func (m *ReloadMonitor) RecordFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastAttempt = time.Now()
	m.consecutiveErrors++
	if err != nil {
		m.lastError = err.Error()
	}
}

// IsHealthy returns false when the inputs were never loaded, the last
// success is older than StaleAfter, or too many reloads failed in a row.
func (m *ReloadMonitor) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthyLocked()
}

func (m *ReloadMonitor) healthyLocked() bool {
	if m.lastSuccess.IsZero() {
		return false
	}
	if m.StaleAfter > 0 && time.Since(m.lastSuccess) > m.StaleAfter {
		return false
	}
	return m.consecutiveErrors <= MaxConsecutiveErrors
}

// ReloadStatus is the reload section of the health response.
type ReloadStatus struct {
	Healthy           bool   `json:"healthy"`
	Reloads           int    `json:"reloads"`
	LastSuccess       string `json:"last_success,omitempty"`
	TimeSinceSuccess  string `json:"time_since_success,omitempty"`
	LastDuration      string `json:"last_duration,omitempty"`
	LastAttempt       string `json:"last_attempt,omitempty"`
	ConsecutiveErrors int    `json:"consecutive_errors,omitempty"`
	LastError         string `json:"last_error,omitempty"`
}

// Status returns the current reload status.
func (m *ReloadMonitor) Status() ReloadStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := ReloadStatus{
		Healthy: m.healthyLocked(),
		Reloads: m.reloads,
	}
	if !m.lastSuccess.IsZero() {
		status.LastSuccess = m.lastSuccess.Format(time.RFC3339)
		status.TimeSinceSuccess = time.Since(m.lastSuccess).Round(time.Millisecond).String()
		status.LastDuration = m.lastDuration.Round(time.Microsecond).String()
	}
	if !m.lastAttempt.IsZero() {
		status.LastAttempt = m.lastAttempt.Format(time.RFC3339)
	}
	if m.consecutiveErrors > 0 {
		status.ConsecutiveErrors = m.consecutiveErrors
		status.LastError = m.lastError
	}
	return status
}
