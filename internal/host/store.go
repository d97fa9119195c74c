package host

import (
	"context"
	"sync"

	"github.com/Techcyte/context-sync/sdk/contracts/syncmsg"
)

// Store keeps the host's committed context. Several host replicas may share
// one store.
type Store interface {
	Load(ctx context.Context) (syncmsg.Context, error)
	Save(ctx context.Context, c syncmsg.Context) error
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu  sync.RWMutex
	cur syncmsg.Context
}

// NewMemoryStore returns a store holding initial.
func NewMemoryStore(initial syncmsg.Context) *MemoryStore {
	return &MemoryStore{cur: initial.Clone()}
}

func (s *MemoryStore) Load(context.Context) (syncmsg.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, c syncmsg.Context) error {
	s.mu.Lock()
	s.cur = c.Clone()
	s.mu.Unlock()
	return nil
}
