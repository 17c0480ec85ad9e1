package session

import (
	"time"

	"github.com/kurun/runcheck/internal/metrics"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics records session transitions into mt.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithScheduler replaces time.AfterFunc for the refresh timer.
func WithScheduler(s Scheduler) Option {
	return func(m *Manager) {
		if s != nil {
			m.schedule = s
		}
	}
}

// WithDefaultExpiresIn sets the lifetime assumed when a response omits expires_in.
func WithDefaultExpiresIn(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.defaultExpiresIn = d
		}
	}
}

// WithExpiryBuffer sets the margin subtracted from expiry by validity checks.
func WithExpiryBuffer(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.expiryBuffer = d
		}
	}
}

// WithRefreshLead sets how long before expiry the scheduled refresh fires.
func WithRefreshLead(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.refreshLead = d
		}
	}
}

// WithRefreshTimeout bounds each refresh call.
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.refreshTimeout = d
		}
	}
}

// WithRearmOnStartup controls whether Init arms the refresh timer for a
// rehydrated token that is still valid.
func WithRearmOnStartup(rearm bool) Option {
	return func(m *Manager) { m.rearmOnStartup = rearm }
}
