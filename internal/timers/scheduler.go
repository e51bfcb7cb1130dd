package timers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"focus-agent/internal/domain"
)

const callbackTimeout = 5 * time.Second

// httpDoer is the minimal HTTP client interface required by the Scheduler.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Scheduler owns in-flight countdown timers. Each timer runs off the request
// goroutine under a cancellable context and performs a single best-effort
// callback to the frontend when it fires. Callback failures are logged and
// swallowed; the timer itself still counts as fired.
type Scheduler struct {
	callbackURL string
	client      httpDoer
	logger      *slog.Logger

	mu     sync.Mutex
	active map[string]*activeTimer
}

type activeTimer struct {
	timer  domain.Timer
	cancel context.CancelFunc
}

type Option func(*Scheduler)

// WithHTTPClient overrides the client used for the expiry callback.
func WithHTTPClient(c httpDoer) Option {
	return func(s *Scheduler) {
		s.client = c
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// NewScheduler creates a Scheduler posting expiry notifications to
// callbackURL. An empty URL disables the callback but timers still run so
// that handles remain listable and cancelable.
func NewScheduler(callbackURL string, opts ...Option) *Scheduler {
	s := &Scheduler{
		callbackURL: strings.TrimSpace(callbackURL),
		client:      &http.Client{Timeout: callbackTimeout},
		logger:      slog.Default(),
		active:      make(map[string]*activeTimer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set validates the clock string, schedules the countdown and returns the
// timer handle immediately.
func (s *Scheduler) Set(clock string) (domain.Timer, error) {
	seconds, ok := ParseClock(clock)
	if !ok {
		return domain.Timer{}, fmt.Errorf("timers: invalid time format %q, expected hh:mm:ss, mm:ss, or seconds", clock)
	}
	if seconds <= 0 {
		return domain.Timer{}, errors.New("timers: duration must be greater than zero")
	}

	dur := time.Duration(seconds) * time.Second
	t := domain.Timer{
		ID:       uuid.NewString(),
		Clock:    FormatClock(seconds),
		Seconds:  seconds,
		FiresAt:  time.Now().UTC().Add(dur),
		Duration: dur,
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.active[t.ID] = &activeTimer{timer: t, cancel: cancel}
	s.mu.Unlock()

	go s.run(ctx, t)
	return t, nil
}

// List returns the currently in-flight timers ordered by expiry.
func (s *Scheduler) List() []domain.Timer {
	s.mu.Lock()
	out := make([]domain.Timer, 0, len(s.active))
	for _, at := range s.active {
		out = append(out, at.timer)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].FiresAt.Before(out[j].FiresAt) })
	return out
}

// Cancel stops an in-flight timer. It returns false when the ID is unknown
// or the timer has already fired.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	at, ok := s.active[id]
	if ok {
		delete(s.active, id)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	at.cancel()
	return true
}

func (s *Scheduler) run(ctx context.Context, t domain.Timer) {
	defer s.remove(t.ID)

	select {
	case <-ctx.Done():
		return
	case <-time.After(t.Duration):
	}

	if s.callbackURL == "" {
		return
	}
	if err := s.notify(t); err != nil {
		s.logger.Debug("timer callback failed", "timer_id", t.ID, "err", err)
	}
}

func (s *Scheduler) remove(id string) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

// notify performs the single expiry callback to the frontend.
func (s *Scheduler) notify(t domain.Timer) error {
	body, err := json.Marshal(map[string]any{
		"time":    t.Clock,
		"seconds": t.Seconds,
	})
	if err != nil {
		return fmt.Errorf("timers: marshal callback: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.callbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("timers: create callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("timers: callback request: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("timers: callback returned status %d", res.StatusCode)
	}
	return nil
}
