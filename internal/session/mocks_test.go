package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var errStoreWrite = errors.New("store write failed")

// MockStore is an in-memory Store with failure injection and call counters.
type MockStore struct {
	mu          sync.Mutex
	data        map[string]string
	unavailable bool
	setErr      error
	setCt       int
	removeCt    int
}

func NewMockStore() *MockStore {
	return &MockStore{data: make(map[string]string)}
}

func (s *MockStore) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.unavailable
}

func (s *MockStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *MockStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCt++
	if s.setErr != nil {
		return s.setErr
	}
	s.data[key] = value
	return nil
}

func (s *MockStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeCt++
	delete(s.data, key)
	return nil
}

// Seed writes directly, bypassing counters.
func (s *MockStore) Seed(kv map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range kv {
		s.data[k] = v
	}
}

func (s *MockStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// MockRefresher records refresh calls. When gate is set each call signals
// entered and blocks until gate is closed.
type MockRefresher struct {
	mu      sync.Mutex
	resp    *TokenResponse
	err     error
	tokens  []string
	calls   atomic.Int32
	gate    chan struct{}
	entered chan struct{}
}

func (r *MockRefresher) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	r.calls.Add(1)
	r.mu.Lock()
	r.tokens = append(r.tokens, refreshToken)
	gate, entered := r.gate, r.entered
	resp, err := r.resp, r.err
	r.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if resp != nil {
		cp := *resp
		return &cp, err
	}
	return nil, err
}

func (r *MockRefresher) Blocking() (release func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = make(chan struct{})
	r.entered = make(chan struct{}, 8)
	gate := r.gate
	return func() { close(gate) }
}

func (r *MockRefresher) Tokens() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tokens...)
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeScheduler records armed timers; tests fire them by hand.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	s       *fakeScheduler
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (s *fakeScheduler) Schedule(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{s: s, delay: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

// Active returns timers that are neither stopped nor fired.
func (s *fakeScheduler) Active() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// Fire runs t's callback as the runtime would, even if it was stopped too late.
func (t *fakeTimer) Fire() {
	t.s.mu.Lock()
	t.fired = true
	f := t.f
	t.s.mu.Unlock()
	f()
}

// recordingLogger captures log lines.
type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Debug(string, ...any) {}

func (l *recordingLogger) Error(format string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, format)
}

func (l *recordingLogger) Errors() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}
