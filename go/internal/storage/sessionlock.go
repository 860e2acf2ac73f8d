package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/vaxgame/go/internal/gameerr"
)

// SessionLocks is an in-process mutex per session id. Stores take it before
// their database-level lock so that goroutines in one process queue here
// instead of on the database.
type SessionLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sessionLock
}

type sessionLock struct {
	ch   chan struct{} // holds one token while locked
	refs int
}

// NewSessionLocks creates an empty lock table.
func NewSessionLocks() *SessionLocks {
	return &SessionLocks{locks: make(map[uuid.UUID]*sessionLock)}
}

func (s *SessionLocks) acquireRef(id uuid.UUID) *sessionLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{ch: make(chan struct{}, 1)}
		s.locks[id] = l
	}
	l.refs++
	return l
}

func (s *SessionLocks) releaseRef(id uuid.UUID, l *sessionLock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, id)
	}
}

// Acquire takes the lock for id. In LockTry mode it returns
// gameerr.ErrContention immediately when the lock is held; in LockWait mode
// it blocks until the lock is free or ctx is done. The returned func unlocks.
func (s *SessionLocks) Acquire(ctx context.Context, id uuid.UUID, mode LockMode) (func(), error) {
	l := s.acquireRef(id)
	unlock := func() {
		<-l.ch
		s.releaseRef(id, l)
	}

	if mode == LockTry {
		select {
		case l.ch <- struct{}{}:
			return unlock, nil
		default:
			s.releaseRef(id, l)
			return nil, gameerr.ErrContention
		}
	}

	select {
	case l.ch <- struct{}{}:
		return unlock, nil
	case <-ctx.Done():
		s.releaseRef(id, l)
		return nil, ctx.Err()
	}
}
