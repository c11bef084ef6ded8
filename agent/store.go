package agent

import (
	"context"
	"sync"
	"time"
)

// SessionStore is the injected session record keeper. Implementations must be
// safe for concurrent use; the engine guarantees per-user serialization on
// top of it.
type SessionStore interface {
	Get(ctx context.Context, userID string) (*Session, bool, error)
	Put(ctx context.Context, session *Session) error
	// IdleSince returns non-terminal sessions untouched since cutoff.
	IdleSince(ctx context.Context, cutoff time.Time) ([]*Session, error)
}

// ExchangeLog is the append-only record of model calls.
type ExchangeLog interface {
	Append(ctx context.Context, exchange *Exchange) error
	List(ctx context.Context, userID string) ([]*Exchange, error)
}

// MemorySessionStore is the in-memory implementation for tests and local use.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: map[string]*Session{}}
}

func (m *MemorySessionStore) Get(ctx context.Context, userID string) (*Session, bool, error) {
	m.mu.RLock()
	session, ok := m.sessions[userID]
	m.mu.RUnlock()
	return session, ok, nil
}

func (m *MemorySessionStore) Put(ctx context.Context, session *Session) error {
	m.mu.Lock()
	m.sessions[session.UserID] = session
	m.mu.Unlock()
	return nil
}

func (m *MemorySessionStore) IdleSince(ctx context.Context, cutoff time.Time) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Session
	for _, session := range m.sessions {
		if !session.State.Terminal() && session.UpdatedAt.Before(cutoff) {
			out = append(out, session)
		}
	}
	return out, nil
}

// MemoryExchangeLog keeps exchanges in arrival order per user.
type MemoryExchangeLog struct {
	mu  sync.RWMutex
	log map[string][]*Exchange
}

func NewMemoryExchangeLog() *MemoryExchangeLog {
	return &MemoryExchangeLog{log: map[string][]*Exchange{}}
}

func (m *MemoryExchangeLog) Append(ctx context.Context, exchange *Exchange) error {
	m.mu.Lock()
	m.log[exchange.UserID] = append(m.log[exchange.UserID], exchange)
	m.mu.Unlock()
	return nil
}

func (m *MemoryExchangeLog) List(ctx context.Context, userID string) ([]*Exchange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.log[userID]
	out := make([]*Exchange, len(entries))
	copy(out, entries)
	return out, nil
}
