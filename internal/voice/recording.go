package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrCapabilityUnavailable = errors.New("continuous speech recognition is not available")
	ErrPermissionDenied      = errors.New("speech recognition permission denied")
	ErrNotRecording          = errors.New("voice recording is not active")
	ErrRecognition           = errors.New("speech recognition failed")
)

// ClassifyError maps a recognizer error code onto the error taxonomy. A nil result means the
// code needs no attention.
func ClassifyError(code string) error {
	switch code {
	case "", "no-speech", "aborted":
		return nil
	case "not-allowed", "service-not-allowed":
		return fmt.Errorf("%w (%s)", ErrPermissionDenied, code)
	}
	return fmt.Errorf("%w: %s", ErrRecognition, code)
}

type ProviderEventKind int

const (
	ProviderResult ProviderEventKind = iota
	ProviderError
	ProviderEnd
)

// ParseProviderEventKind reads the wire names "result", "error" and "end".
func ParseProviderEventKind(s string) (ProviderEventKind, error) {
	switch s {
	case "result", "":
		return ProviderResult, nil
	case "error":
		return ProviderError, nil
	case "end":
		return ProviderEnd, nil
	}
	return 0, fmt.Errorf("unknown recognizer event %q", s)
}

// ProviderEvent is what a Recognizer pushes into the sink it was started with.
type ProviderEvent struct {
	Kind   ProviderEventKind
	Result Event
	Code   string
}

// Recognizer is a continuous speech recognition service. Start begins streaming into sink;
// the service may end a stream on its own, which it reports with a ProviderEnd event.
type Recognizer interface {
	Start(ctx context.Context, sink func(ProviderEvent)) error
	Stop() error
}

// RecordingHooks receive the outcome of provider events. They run on the provider's goroutine.
type RecordingHooks struct {
	Deliver  func(Event)
	OnError  func(error)
	OnActive func(bool)
}

// Recording owns one recognizer stream and restarts it when the provider ends it while the
// operator is still recording.
type Recording struct {
	mu        sync.Mutex
	rec       Recognizer
	hooks     RecordingHooks
	log       *zap.Logger
	ctx       context.Context
	recording bool
	restarts  int
}

func NewRecording(rec Recognizer, hooks RecordingHooks, log *zap.Logger) *Recording {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recording{rec: rec, hooks: hooks, log: log}
}

// Available reports whether a recognizer is wired in at all.
func (r *Recording) Available() bool { return r.rec != nil }

func (r *Recording) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Restarts counts provider-side ends that were followed by an automatic restart.
func (r *Recording) Restarts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.restarts
}

func (r *Recording) Start(ctx context.Context) error {
	if r.rec == nil {
		return ErrCapabilityUnavailable
	}
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return nil
	}
	r.recording = true
	r.ctx = ctx
	r.mu.Unlock()

	if err := r.rec.Start(ctx, r.handle); err != nil {
		r.mu.Lock()
		r.recording = false
		r.mu.Unlock()
		return fmt.Errorf("start recognition: %w", err)
	}
	r.log.Info("Voice recording started")
	r.active(true)
	return nil
}

// Stop ends the stream and cancels auto-restart.
func (r *Recording) Stop() error {
	if r.rec == nil {
		return ErrCapabilityUnavailable
	}
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return ErrNotRecording
	}
	r.recording = false
	r.mu.Unlock()

	err := r.rec.Stop()
	r.log.Info("Voice recording stopped")
	r.active(false)
	if err != nil {
		return fmt.Errorf("stop recognition: %w", err)
	}
	return nil
}

func (r *Recording) handle(ev ProviderEvent) {
	r.mu.Lock()
	recording := r.recording
	ctx := r.ctx
	r.mu.Unlock()

	switch ev.Kind {
	case ProviderResult:
		if !recording {
			return
		}
		if r.hooks.Deliver != nil {
			r.hooks.Deliver(ev.Result)
		}
	case ProviderError:
		err := ClassifyError(ev.Code)
		if err == nil {
			r.log.Debug("Ignored recognition event", zap.String("code", ev.Code))
			return
		}
		r.log.Error("Recognition error", zap.String("code", ev.Code), zap.Error(err))
		if errors.Is(err, ErrPermissionDenied) && recording {
			r.mu.Lock()
			r.recording = false
			r.mu.Unlock()
			if stopErr := r.rec.Stop(); stopErr != nil {
				r.log.Warn("Failed to stop recognizer after permission error", zap.Error(stopErr))
			}
			r.active(false)
		}
		r.fail(err)
	case ProviderEnd:
		if !recording {
			return
		}
		r.mu.Lock()
		r.restarts++
		r.mu.Unlock()
		r.log.Debug("Recognizer ended, restarting")
		if err := r.rec.Start(ctx, r.handle); err != nil {
			r.mu.Lock()
			r.recording = false
			r.mu.Unlock()
			r.active(false)
			r.fail(fmt.Errorf("restart recognition: %w", err))
		}
	}
}

func (r *Recording) active(on bool) {
	if r.hooks.OnActive != nil {
		r.hooks.OnActive(on)
	}
}

func (r *Recording) fail(err error) {
	if r.hooks.OnError != nil {
		r.hooks.OnError(err)
	}
}

// Relay is a Recognizer fed from outside the process: a browser posting its recognition
// events, or a replay script. Feed pushes an event into whichever stream is currently started.
type Relay struct {
	mu      sync.Mutex
	sink    func(ProviderEvent)
	starts  int
	stops   int
	startFn func() error
}

func NewRelay() *Relay { return &Relay{} }

// FailStartWith makes every later Start return the error produced by fn.
func (s *Relay) FailStartWith(fn func() error) {
	s.mu.Lock()
	s.startFn = fn
	s.mu.Unlock()
}

func (s *Relay) Start(_ context.Context, sink func(ProviderEvent)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startFn != nil {
		if err := s.startFn(); err != nil {
			return err
		}
	}
	s.sink = sink
	s.starts++
	return nil
}

func (s *Relay) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = nil
	s.stops++
	return nil
}

// Feed delivers ev to the running stream. It reports false when no stream is started.
func (s *Relay) Feed(ev ProviderEvent) bool {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink == nil {
		return false
	}
	sink(ev)
	return true
}

func (s *Relay) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

func (s *Relay) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}
