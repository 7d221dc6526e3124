package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"perio-go/internal/chart"
	"perio-go/internal/voice"
)

// Meta is what the caller attaches to a session for persistence. The engine ignores it.
type Meta struct {
	PatientID string
	ExamID    uuid.UUID
}

// SaveFunc persists a committed record.
type SaveFunc func(ctx context.Context, meta Meta, rec chart.ExamRecord) error

type entry struct {
	id       string
	meta     Meta
	ctrl     *Controller
	relay    *voice.Relay
	queue    chan func()
	done     chan struct{}
	mu       sync.Mutex
	lastUsed time.Time
}

func (e *entry) touch(t time.Time) {
	e.mu.Lock()
	e.lastUsed = t
	e.mu.Unlock()
}

func (e *entry) idleSince() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastUsed
}

// Manager owns the live exam sessions. Each session runs its events one at a time on its own
// goroutine, so no two writes to a session ever interleave.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	defaults Options
	now      func() time.Time
	log      *zap.Logger
}

// NewManager returns a manager whose sessions start from defaults. Per-session options override
// scheme, phase, seeds and the initial record.
func NewManager(defaults Options, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	now := defaults.Clock
	if now == nil {
		now = time.Now
	}
	return &Manager{
		sessions: make(map[string]*entry),
		defaults: defaults,
		now:      now,
		log:      log,
	}
}

// SetVoiceSettings changes the voice settings that sessions created from now on start with.
func (m *Manager) SetVoiceSettings(s voice.Settings) {
	m.mu.Lock()
	m.defaults.Voice = s
	m.mu.Unlock()
}

// CreateRequest selects the per-session parts of Options.
type CreateRequest struct {
	Scheme      chart.Scheme
	Phase       chart.Phase
	SeedMissing []int
	Initial     *chart.ExamRecord
	Meta        Meta
}

// Create starts a session and returns its ID. Every session gets its own recognizer relay.
func (m *Manager) Create(req CreateRequest) (string, error) {
	m.mu.RLock()
	opts := m.defaults
	m.mu.RUnlock()
	opts.Scheme = req.Scheme
	opts.Phase = req.Phase
	opts.SeedMissing = req.SeedMissing
	opts.Initial = req.Initial

	relay := voice.NewRelay()
	opts.Recognizer = relay

	id := uuid.NewString()
	log := m.log.With(zap.String("session_id", id))
	ctrl, err := NewController(opts, log)
	if err != nil {
		return "", err
	}

	e := &entry{
		id:       id,
		meta:     req.Meta,
		ctrl:     ctrl,
		relay:    relay,
		queue:    make(chan func()),
		done:     make(chan struct{}),
		lastUsed: m.now(),
	}
	ctrl.dispatch = func(fn func()) {
		if err := m.run(context.Background(), e, func(*Controller) error { fn(); return nil }); err != nil {
			log.Warn("Dropped recognizer event for closed session", zap.Error(err))
		}
	}
	go e.loop()

	m.mu.Lock()
	m.sessions[id] = e
	m.mu.Unlock()

	log.Info("Exam session created",
		zap.String("patient_id", req.Meta.PatientID),
		zap.String("scheme", string(ctrl.Scheme())))
	return id, nil
}

func (e *entry) loop() {
	for {
		select {
		case fn := <-e.queue:
			fn()
		case <-e.done:
			return
		}
	}
}

func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	return e, nil
}

// Do runs fn on the session's goroutine and waits for it.
func (m *Manager) Do(ctx context.Context, id string, fn func(*Controller) error) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	return m.run(ctx, e, fn)
}

func (m *Manager) run(ctx context.Context, e *entry, fn func(*Controller) error) error {
	result := make(chan error, 1)
	job := func() { result <- fn(e.ctrl) }

	select {
	case e.queue <- job:
	case <-e.done:
		return fmt.Errorf("%s: %w", e.id, ErrSessionNotFound)
	case <-ctx.Done():
		return ctx.Err()
	}
	e.touch(m.now())
	// once queued the job always runs, so wait for it even if ctx ends
	return <-result
}

// Meta returns what was attached to the session at creation.
func (m *Manager) Meta(id string) (Meta, error) {
	e, err := m.lookup(id)
	if err != nil {
		return Meta{}, err
	}
	return e.meta, nil
}

// Feed pushes a recognizer event into the session's running voice stream. It must not be
// called from inside Do.
func (m *Manager) Feed(id string, ev voice.ProviderEvent) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	if !e.relay.Feed(ev) {
		return voice.ErrNotRecording
	}
	e.touch(m.now())
	return nil
}

// Commit saves the session's record and closes the session. When save fails the session stays
// open so the caller can retry.
func (m *Manager) Commit(ctx context.Context, id string, save SaveFunc) (chart.ExamRecord, error) {
	e, err := m.lookup(id)
	if err != nil {
		return chart.ExamRecord{}, err
	}
	var rec chart.ExamRecord
	err = m.run(ctx, e, func(c *Controller) error {
		if err := c.open(); err != nil {
			return err
		}
		snapshot := c.Record()
		if save != nil {
			if err := save(ctx, e.meta, snapshot); err != nil {
				return fmt.Errorf("save exam: %w", err)
			}
		}
		committed, commitErr := c.Commit()
		rec = committed
		return commitErr
	})
	if err != nil {
		return chart.ExamRecord{}, err
	}
	m.remove(e, "committed")
	return rec, nil
}

// Cancel discards the session.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	if err := m.run(ctx, e, func(c *Controller) error { return c.Cancel() }); err != nil {
		return err
	}
	m.remove(e, "cancelled")
	return nil
}

func (m *Manager) remove(e *entry, reason string) {
	m.mu.Lock()
	if _, ok := m.sessions[e.id]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, e.id)
	m.mu.Unlock()
	close(e.done)
	m.log.Info("Exam session closed", zap.String("session_id", e.id), zap.String("reason", reason))
}

// EvictIdle cancels every session unused for longer than maxIdle and returns how many it removed.
func (m *Manager) EvictIdle(ctx context.Context, maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)

	m.mu.RLock()
	var stale []*entry
	for _, e := range m.sessions {
		if e.idleSince().Before(cutoff) {
			stale = append(stale, e)
		}
	}
	m.mu.RUnlock()

	for _, e := range stale {
		err := m.run(ctx, e, func(c *Controller) error {
			if c.Closed() {
				return nil
			}
			return c.Cancel()
		})
		if err != nil {
			m.log.Warn("Failed to cancel idle session", zap.String("session_id", e.id), zap.Error(err))
		}
		m.remove(e, "idle")
	}
	return len(stale)
}

// Len is the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown cancels every live session.
func (m *Manager) Shutdown(ctx context.Context) {
	m.EvictIdle(ctx, -time.Nanosecond)
}
