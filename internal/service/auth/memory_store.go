package auth

import (
	"context"
	"sync"
	"time"
)

const memoryStoreSweepInterval = 5 * time.Minute

// memoryAttemptStore is the single-process fallback when Redis is not
// configured. Counters are lost on restart and not shared across machines.
type memoryAttemptStore struct {
	mu       sync.Mutex
	counters map[string]memoryCounter
	lockouts map[string]time.Time
	stopCh   chan struct{}
	once     sync.Once
}

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryAttemptStore constructs an in-process store with a sweep loop.
func NewMemoryAttemptStore() (AttemptStore, func()) {
	s := &memoryAttemptStore{
		counters: make(map[string]memoryCounter),
		lockouts: make(map[string]time.Time),
		stopCh:   make(chan struct{}),
	}
	go s.sweepLoop()
	return s, s.close
}

func (s *memoryAttemptStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.counters[key]
	if !ok || now.After(counter.expiresAt) {
		counter = memoryCounter{count: 0, expiresAt: now.Add(ttl)}
	}
	counter.count++
	s.counters[key] = counter
	return counter.count, nil
}

func (s *memoryAttemptStore) SetLockout(_ context.Context, key string, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockouts[key] = time.Now().Add(d)
	return nil
}

func (s *memoryAttemptStore) LockoutRemaining(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.lockouts[key]
	if !ok {
		return 0, nil
	}
	remaining := time.Until(until)
	if remaining <= 0 {
		delete(s.lockouts, key)
		return 0, nil
	}
	return remaining, nil
}

func (s *memoryAttemptStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, key)
	delete(s.lockouts, key)
	return nil
}

func (s *memoryAttemptStore) sweepLoop() {
	ticker := time.NewTicker(memoryStoreSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanup(time.Now())
		case <-s.stopCh:
			return
		}
	}
}

func (s *memoryAttemptStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, counter := range s.counters {
		if now.After(counter.expiresAt) {
			delete(s.counters, key)
		}
	}
	for key, until := range s.lockouts {
		if now.After(until) {
			delete(s.lockouts, key)
		}
	}
}

func (s *memoryAttemptStore) close() {
	s.once.Do(func() {
		close(s.stopCh)
	})
}
