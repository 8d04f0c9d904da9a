package session

import "time"

// Observer receives registry events. Implementations must be safe for concurrent use.
type Observer interface {
	SessionCreated()
	SessionsExpired(n int)
	ToolStateUpdated(tool string)
}

type nopObserver struct{}

func (nopObserver) SessionCreated()         {}
func (nopObserver) SessionsExpired(int)     {}
func (nopObserver) ToolStateUpdated(string) {}

// Option configures a Manager.
type Option func(*Manager)

// WithIdleTimeout expires sessions not accessed for d. Zero disables expiry.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) { m.idleTimeout = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides session id allocation.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) { m.newID = gen }
}

// WithObserver registers an event observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}
