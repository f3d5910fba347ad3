// Package health provides low-overhead process diagnostics for the message
// proxy: last-activity tracking and a goroutine-count check, adapted from
// the teacher's signing-service health monitor to admission request
// activity instead of signing operations. This is pure observability
// (SPEC_FULL §2 item 12) — it never gates admission decisions, unlike the
// maintenance flag.
package health

import (
	"runtime"
	"sync/atomic"
	"time"
)

// Monitor tracks proxy health with minimal overhead: atomic ops only, no
// locks, no I/O on the admission request path.
type Monitor struct {
	lastActivity   atomic.Int64  // Unix timestamp of last admission request
	requestCount   atomic.Uint64 // total admission requests served
	goroutineLimit int           // max allowed goroutines, 0 = no limit
}

// NewMonitor creates a Monitor. goroutineLimit is the ceiling IsHealthy
// checks against; 0 disables the check.
func NewMonitor(goroutineLimit int) *Monitor {
	m := &Monitor{goroutineLimit: goroutineLimit}
	m.lastActivity.Store(time.Now().Unix())
	return m
}

// RecordActivity is called from the admission middleware on every request.
func (m *Monitor) RecordActivity() {
	m.lastActivity.Store(time.Now().Unix())
	m.requestCount.Add(1)
}

// LastActivity returns the time of the last recorded admission request.
func (m *Monitor) LastActivity() time.Time {
	return time.Unix(m.lastActivity.Load(), 0)
}

// RequestCount returns the total number of admission requests served.
func (m *Monitor) RequestCount() uint64 {
	return m.requestCount.Load()
}

// SecondsSinceActivity returns seconds since the last admission request.
func (m *Monitor) SecondsSinceActivity() int64 {
	return time.Now().Unix() - m.lastActivity.Load()
}

// IsHealthy reports whether the process is within its goroutine budget.
// Call from a background ticker, not the request path.
func (m *Monitor) IsHealthy() bool {
	if m.goroutineLimit > 0 && runtime.NumGoroutine() > m.goroutineLimit {
		return false
	}
	return true
}

// GoroutineCount returns the current goroutine count.
func (m *Monitor) GoroutineCount() int {
	return runtime.NumGoroutine()
}
