package crawler

import (
	"context"
	"sync"
)

// DomainLocks guarantees that at most one worker crawls a domain at a time.
// It is safe for concurrent use and shared by every worker of a process.
type DomainLocks struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

// NewDomainLocks creates an empty lock registry.
func NewDomainLocks() *DomainLocks {
	return &DomainLocks{held: make(map[string]chan struct{})}
}

// Lock blocks until domain is free or ctx is done. The returned function
// releases the lock and may be called more than once.
func (l *DomainLocks) Lock(ctx context.Context, domain string) (func(), error) {
	for {
		l.mu.Lock()
		wait, busy := l.held[domain]
		if !busy {
			done := make(chan struct{})
			l.held[domain] = done
			l.mu.Unlock()
			return l.releaser(domain, done), nil
		}
		l.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TryLock takes the lock without waiting. It returns ErrDomainLocked when
// the domain is busy.
func (l *DomainLocks) TryLock(domain string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[domain]; busy {
		return nil, ErrDomainLocked
	}
	done := make(chan struct{})
	l.held[domain] = done
	return l.releaser(domain, done), nil
}

// Held reports whether domain is currently locked.
func (l *DomainLocks) Held(domain string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, busy := l.held[domain]
	return busy
}

func (l *DomainLocks) releaser(domain string, done chan struct{}) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, domain)
			l.mu.Unlock()
			close(done)
		})
	}
}
