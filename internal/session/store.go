// Package session maps chat participants to assistant-side threads. A
// fast in-process map fronts an optional durable cache; the durable layer
// is an optimization for short-lived hosts, not a correctness requirement.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultTTL is how long a durable mapping survives without a reset.
const DefaultTTL = 7 * 24 * time.Hour

// ThreadMinter creates a new assistant-side thread. Satisfied by the
// assistant gateway client.
type ThreadMinter interface {
	CreateThread(ctx context.Context) (string, error)
}

// Cache is the durable participant->thread mapping. Implementations are
// treated as best-effort: every error is logged and swallowed here.
type Cache interface {
	GetThread(ctx context.Context, participantID int64) (string, bool, error)
	PutThread(ctx context.Context, participantID int64, threadID string, ttl time.Duration) error
	DeleteThread(ctx context.Context, participantID int64) error
}

// Store resolves the thread for a participant, minting one on first
// contact. Concurrent messages from the same participant may race to mint;
// last writer wins and the orphaned thread is simply abandoned.
type Store struct {
	minter  ThreadMinter
	durable Cache // nil means memory-only
	ttl     time.Duration
	log     *slog.Logger

	mu  sync.RWMutex
	mem map[int64]string
}

// NewStore creates a Store. durable may be nil, in which case mappings
// live only as long as the process.
func NewStore(minter ThreadMinter, durable Cache, log *slog.Logger) (*Store, error) {
	if minter == nil {
		return nil, fmt.Errorf("session: thread minter must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		minter:  minter,
		durable: durable,
		ttl:     DefaultTTL,
		log:     log,
		mem:     make(map[int64]string),
	}, nil
}

// ResolveOrCreate returns the participant's live thread id, consulting the
// in-process map, then the durable cache, then minting a new thread. A
// minting failure propagates: no session exists without a backend thread.
func (s *Store) ResolveOrCreate(ctx context.Context, participantID int64) (string, error) {
	s.mu.RLock()
	threadID, ok := s.mem[participantID]
	s.mu.RUnlock()
	if ok {
		return threadID, nil
	}

	if s.durable != nil {
		threadID, found, err := s.durable.GetThread(ctx, participantID)
		if err != nil {
			s.log.Warn("session: durable cache read failed", "participant", participantID, "err", err)
		} else if found {
			s.remember(participantID, threadID)
			return threadID, nil
		}
	}

	threadID, err := s.minter.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("session: create thread: %w", err)
	}
	s.remember(participantID, threadID)

	if s.durable != nil {
		if err := s.durable.PutThread(ctx, participantID, threadID, s.ttl); err != nil {
			s.log.Warn("session: durable cache write failed", "participant", participantID, "err", err)
		}
	}
	s.log.Info("session: thread created", "participant", participantID, "thread", threadID)
	return threadID, nil
}

// Forget drops the participant's mapping from both layers. Calling it when
// no mapping exists is a no-op.
func (s *Store) Forget(ctx context.Context, participantID int64) {
	s.mu.Lock()
	delete(s.mem, participantID)
	s.mu.Unlock()

	if s.durable != nil {
		if err := s.durable.DeleteThread(ctx, participantID); err != nil {
			s.log.Warn("session: durable cache delete failed", "participant", participantID, "err", err)
		}
	}
}

func (s *Store) remember(participantID int64, threadID string) {
	s.mu.Lock()
	s.mem[participantID] = threadID
	s.mu.Unlock()
}
