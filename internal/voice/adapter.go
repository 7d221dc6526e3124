package voice

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"perio-go/internal/chart"
)

// Event is one result from a continuous recognizer.
type Event struct {
	Transcript string  `json:"transcript" yaml:"transcript"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	IsFinal    bool    `json:"isFinal" yaml:"isFinal"`
}

// Target receives the writes a parsed utterance produces. Depth values are applied as one batch
// at the cursor; bleeding and mobility do not move it.
type Target interface {
	WriteDepths(values []int) (int, error)
	MarkBleeding(tooth int, point chart.Point, allPoints bool) (int, error)
	SetMobility(tooth, degree int) error
}

type Settings struct {
	DuplicateWindow     time.Duration
	ConfidenceThreshold float64
	AdvisoryTTL         time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		DuplicateWindow:     400 * time.Millisecond,
		ConfidenceThreshold: 0.7,
		AdvisoryTTL:         3 * time.Second,
	}
}

// Advisory asks the operator to check a value that was written from a low-confidence result.
type Advisory struct {
	Message    string    `json:"message"`
	Confidence float64   `json:"confidence"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

func (a *Advisory) Active(now time.Time) bool {
	return a != nil && now.Before(a.ExpiresAt)
}

// Result describes what Handle did with one event.
type Result struct {
	Live        bool      `json:"live"`
	Duplicate   bool      `json:"duplicate"`
	ModeChanged bool      `json:"modeChanged"`
	Mode        Mode      `json:"mode"`
	Utterance   Utterance `json:"utterance"`
	Written     int       `json:"written"`
	Skipped     int       `json:"skipped"`
	Advisory    *Advisory `json:"advisory,omitempty"`
}

// Adapter turns recognizer events into store writes. It is not safe for concurrent use; the
// owning session serializes calls.
type Adapter struct {
	parser   *Parser
	settings Settings
	mode     Mode
	now      func() time.Time
	log      *zap.Logger

	lastText string
	lastAt   time.Time
	live     string
	advisory *Advisory
}

func NewAdapter(parser *Parser, settings Settings, log *zap.Logger) *Adapter {
	if parser == nil {
		parser = NewParser(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	def := DefaultSettings()
	if settings.DuplicateWindow <= 0 {
		settings.DuplicateWindow = def.DuplicateWindow
	}
	if settings.ConfidenceThreshold <= 0 {
		settings.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if settings.AdvisoryTTL <= 0 {
		settings.AdvisoryTTL = def.AdvisoryTTL
	}
	return &Adapter{
		parser:   parser,
		settings: settings,
		mode:     ModeDepth,
		now:      time.Now,
		log:      log,
	}
}

// SetClock replaces the time source.
func (a *Adapter) SetClock(now func() time.Time) { a.now = now }

func (a *Adapter) Mode() Mode         { return a.mode }
func (a *Adapter) SetMode(m Mode)     { a.mode = m }
func (a *Adapter) LiveText() string   { return a.live }
func (a *Adapter) Settings() Settings { return a.settings }

// Advisory returns the current advisory, or nil once it has expired.
func (a *Adapter) Advisory() *Advisory {
	if !a.advisory.Active(a.now()) {
		return nil
	}
	return a.advisory
}

// Handle processes one recognizer event. Partial results only update the live text. Final
// results are deduplicated, parsed and written to target.
func (a *Adapter) Handle(ev Event, target Target) (Result, error) {
	now := a.now()
	text := strings.TrimSpace(ev.Transcript)

	if !ev.IsFinal {
		a.live = text
		return Result{Live: true, Mode: a.mode}, nil
	}
	a.live = ""

	if text == "" {
		return Result{Mode: a.mode}, nil
	}
	if text == a.lastText && !a.lastAt.IsZero() && now.Sub(a.lastAt) < a.settings.DuplicateWindow {
		a.log.Debug("Dropped duplicate utterance",
			zap.String("text", text),
			zap.Duration("since_last", now.Sub(a.lastAt)))
		return Result{Duplicate: true, Mode: a.mode}, nil
	}
	a.lastText = text
	a.lastAt = now

	u := a.parser.Parse(text, a.mode, ev.Confidence)
	res := Result{Utterance: u}
	if u.Mode != a.mode {
		a.log.Info("Voice mode switched", zap.String("from", string(a.mode)), zap.String("to", string(u.Mode)))
		a.mode = u.Mode
		res.ModeChanged = true
	}
	res.Mode = a.mode

	if ev.Confidence < a.settings.ConfidenceThreshold {
		a.advisory = &Advisory{
			Message:    fmt.Sprintf("Low recognition confidence (%.0f%%), please check the entered values", ev.Confidence*100),
			Confidence: ev.Confidence,
			ExpiresAt:  now.Add(a.settings.AdvisoryTTL),
		}
		res.Advisory = a.advisory
		a.log.Warn("Low confidence utterance", zap.String("text", text), zap.Float64("confidence", ev.Confidence))
	} else {
		a.advisory = nil
	}

	var err error
	res.Written, res.Skipped, err = a.apply(u, target)
	return res, err
}

func (a *Adapter) apply(u Utterance, target Target) (written, skipped int, err error) {
	switch u.Mode {
	case ModeBleeding:
		for _, m := range u.Marks {
			n, markErr := target.MarkBleeding(m.Tooth, m.Point, !m.HasPoint)
			if errors.Is(markErr, chart.ErrMissingTooth) || errors.Is(markErr, chart.ErrOutOfGrid) {
				skipped++
				continue
			}
			if markErr != nil {
				return written, skipped, fmt.Errorf("mark bleeding on %d: %w", m.Tooth, markErr)
			}
			written += n
		}
	case ModeMobility:
		for _, g := range u.Grades {
			setErr := target.SetMobility(g.Tooth, g.Degree)
			if errors.Is(setErr, chart.ErrMissingTooth) {
				skipped++
				continue
			}
			if setErr != nil {
				return written, skipped, fmt.Errorf("set mobility on %d: %w", g.Tooth, setErr)
			}
			written++
		}
	default:
		if len(u.Depths) == 0 {
			return 0, 0, nil
		}
		n, writeErr := target.WriteDepths(u.Depths)
		if writeErr != nil {
			return 0, 0, fmt.Errorf("write depths: %w", writeErr)
		}
		written = n
	}
	if skipped > 0 {
		a.log.Debug("Skipped voice entries on missing teeth or uncollected sites", zap.Int("skipped", skipped))
	}
	return written, skipped, nil
}
