package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager is the process-wide session registry. Each session carries its own
// lock, and each tool partition inside it has another, so merges into
// different sessions or different tools never wait on each other.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	idleTimeout time.Duration
	now         func() time.Time
	newID       func() string
	observer    Observer
	logger      *slog.Logger
}

type entry struct {
	mu           sync.Mutex
	id           string
	userID       string
	createdAt    time.Time
	lastAccessed time.Time
	partitions   map[string]*partition
	removed      bool
}

type partition struct {
	mu    sync.Mutex
	state State
}

// NewManager creates an empty registry.
func NewManager(logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &Manager{
		sessions: make(map[string]*entry),
		now:      time.Now,
		newID:    uuid.NewString,
		observer: nopObserver{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Resolve returns the live session for id. An empty, unknown or expired id
// yields a fresh session with a new identifier; created reports which case applied.
func (m *Manager) Resolve(id string) (sess Session, created bool) {
	now := m.now()
	if id != "" {
		if e, ok := m.live(id, now); ok {
			return e.snapshot(now, true), false
		}
	}

	m.mu.Lock()
	if id != "" {
		if e, ok := m.sessions[id]; ok {
			if !m.expired(e, now) {
				m.mu.Unlock()
				return e.snapshot(now, true), false
			}
			m.removeLocked(e)
		}
	}
	newID := m.newID()
	for _, taken := m.sessions[newID]; taken; _, taken = m.sessions[newID] {
		newID = m.newID()
	}
	e := &entry{
		id:           newID,
		createdAt:    now,
		lastAccessed: now,
		partitions:   make(map[string]*partition),
	}
	m.sessions[newID] = e
	m.mu.Unlock()

	m.observer.SessionCreated()
	m.logger.Debug("session created", "session_id", newID, "requested_id", id)
	return e.snapshot(now, false), true
}

// Get returns a snapshot of a live session.
func (m *Manager) Get(id string) (Session, error) {
	now := m.now()
	e, ok := m.live(id, now)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return e.snapshot(now, true), nil
}

// Status returns the summary of a live session.
func (m *Manager) Status(id string) (Status, error) {
	sess, err := m.Get(id)
	if err != nil {
		return Status{}, err
	}
	return sess.Status(), nil
}

// BindUser records the owner of a session. A session is bound at most once;
// binding it to a different user fails with ErrUserMismatch.
func (m *Manager) BindUser(id, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	now := m.now()
	e, ok := m.live(id, now)
	if !ok {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return fmt.Errorf("%w: %w", ErrConsistencyFault, ErrSessionNotFound)
	}
	if e.userID != "" && e.userID != userID {
		return ErrUserMismatch
	}
	if e.userID == "" {
		e.userID = userID
		m.logger.Debug("session bound", "session_id", id, "user_id", userID)
	}
	e.lastAccessed = now
	return nil
}

// UpdateToolState shallow-merges patch into the tool's partition, creating it
// if needed. Keys in patch overwrite; all other keys are kept.
func (m *Manager) UpdateToolState(id, tool string, patch State) error {
	if tool == "" {
		return fmt.Errorf("%w: tool name is required", ErrInvalidInput)
	}
	normalized, err := Normalize(patch)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return m.ModifyToolState(id, tool, func(State) State { return normalized })
}

// ModifyToolState computes a patch from the current partition and merges it
// in one critical section. fn receives a copy of the partition (nil when the
// tool has no state yet) and may return nil to leave the partition untouched.
// fn must not call back into the Manager.
func (m *Manager) ModifyToolState(id, tool string, fn func(current State) State) error {
	if tool == "" {
		return fmt.Errorf("%w: tool name is required", ErrInvalidInput)
	}
	p, err := m.partitionFor(id, tool)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	patch := fn(p.state.Clone())
	if patch == nil {
		return nil
	}
	normalized, err := Normalize(patch)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if p.state == nil {
		p.state = make(State, len(normalized))
	}
	for k, v := range normalized {
		p.state[k] = v
	}
	m.observer.ToolStateUpdated(tool)
	return nil
}

// GetToolState returns a copy of the tool's partition; ok is false when the
// tool has no state in this session.
func (m *Manager) GetToolState(id, tool string) (state State, ok bool, err error) {
	now := m.now()
	e, live := m.live(id, now)
	if !live {
		return nil, false, ErrSessionNotFound
	}

	e.mu.Lock()
	e.lastAccessed = now
	p, exists := e.partitions[tool]
	e.mu.Unlock()
	if !exists {
		return nil, false, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == nil {
		return nil, false, nil
	}
	return p.state.Clone(), true, nil
}

// Sweep removes sessions idle past the timeout and returns how many it removed.
func (m *Manager) Sweep() int {
	if m.idleTimeout <= 0 {
		return 0
	}
	now := m.now()

	m.mu.Lock()
	removed := 0
	for _, e := range m.sessions {
		if m.expired(e, now) {
			m.removeLocked(e)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		m.observer.SessionsExpired(removed)
		m.logger.Info("expired idle sessions", "count", removed)
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 || m.idleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Len returns the number of registered sessions, expired ones included until swept.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) live(id string, now time.Time) (*entry, bool) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || m.expired(e, now) {
		return nil, false
	}
	return e, true
}

// partitionFor looks up the tool partition, creating it when absent. A session
// that disappeared after the caller resolved it is a consistency fault.
func (m *Manager) partitionFor(id, tool string) (*partition, error) {
	now := m.now()
	e, ok := m.live(id, now)
	if !ok {
		m.logger.Error("tool state write to unknown session", "session_id", id, "tool", tool)
		return nil, fmt.Errorf("%w: %w", ErrConsistencyFault, ErrSessionNotFound)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		m.logger.Error("tool state write to removed session", "session_id", id, "tool", tool)
		return nil, fmt.Errorf("%w: %w", ErrConsistencyFault, ErrSessionNotFound)
	}
	e.lastAccessed = now
	p, exists := e.partitions[tool]
	if !exists {
		p = &partition{}
		e.partitions[tool] = p
	}
	return p, nil
}

func (m *Manager) expired(e *entry, now time.Time) bool {
	if m.idleTimeout <= 0 {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removed || now.Sub(e.lastAccessed) > m.idleTimeout
}

// removeLocked drops e from the registry. m.mu must be held for writing.
func (m *Manager) removeLocked(e *entry) {
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
	delete(m.sessions, e.id)
}

func (e *entry) snapshot(now time.Time, touch bool) Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if touch {
		e.lastAccessed = now
	}
	states := make(map[string]State, len(e.partitions))
	for name, p := range e.partitions {
		p.mu.Lock()
		if p.state != nil {
			states[name] = p.state.Clone()
		}
		p.mu.Unlock()
	}
	return Session{
		ID:             e.id,
		UserID:         e.userID,
		ToolStates:     states,
		CreatedAt:      e.createdAt,
		LastAccessedAt: e.lastAccessed,
	}
}
