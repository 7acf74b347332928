package session

import (
	"context"
	"strings"
	"sync"

	commonlog "msg_client/client/common/log"
)

// TokenKey is the durable key every store persists the bearer token under.
const TokenKey = "telegram_token"

// Store is the durable side of a Session.
type Store interface {
	Load(ctx context.Context) (token string, ok bool, err error)
	Save(ctx context.Context, token string) error
	Delete(ctx context.Context) error
}

type closer interface {
	Close() error
}

// Session holds at most one bearer token. Its presence is the only signal of
// being authenticated.
type Session struct {
	mu    sync.RWMutex
	token string
	store Store
}

// Open reads the durable store once. A failed read leaves the session
// unauthenticated instead of failing startup.
func Open(ctx context.Context, store Store) *Session {
	if store == nil {
		store = NewMemoryStore()
	}
	s := &Session{store: store}
	token, ok, err := store.Load(ctx)
	if err != nil {
		commonlog.Warnf("session load failed, starting unauthenticated: %v", err)
		return s
	}
	if ok {
		s.token = strings.TrimSpace(token)
	}
	return s
}

func (s *Session) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

func (s *Session) Authenticated() bool {
	_, ok := s.Token()
	return ok
}

// SetToken replaces the held token. The in-memory token is updated even when
// the durable write fails; that error is returned to the caller.
func (s *Session) SetToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return s.ClearToken(ctx)
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return s.store.Save(ctx, token)
}

// ClearToken is idempotent.
func (s *Session) ClearToken(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	return s.store.Delete(ctx)
}

// Close releases the store. The durable token is kept.
func (s *Session) Close() error {
	if c, ok := s.store.(closer); ok {
		return c.Close()
	}
	return nil
}
