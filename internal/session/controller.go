package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"perio-go/internal/chart"
	"perio-go/internal/utils"
	"perio-go/internal/voice"
)

var (
	ErrSessionClosed        = errors.New("exam session is closed")
	ErrSessionNotFound      = errors.New("exam session not found")
	ErrConfirmationRequired = errors.New("bulk fill must be confirmed")
	ErrVoiceModeLocked      = errors.New("voice mode cannot change while recording")
	ErrInvalidValue         = errors.New("value out of range")
	ErrSchemeMismatch       = errors.New("scheme differs from the record being edited")
)

// EntryMode decides what a cell click does.
type EntryMode int

const (
	Normal EntryMode = iota
	MarkBleeding
	MarkSuppuration
)

func (m EntryMode) String() string {
	switch m {
	case MarkBleeding:
		return "bleeding"
	case MarkSuppuration:
		return "suppuration"
	}
	return "normal"
}

func (m EntryMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *EntryMode) UnmarshalText(b []byte) error {
	parsed, err := ParseEntryMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func ParseEntryMode(s string) (EntryMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal", "":
		return Normal, nil
	case "bleeding", "bop":
		return MarkBleeding, nil
	case "suppuration", "pus":
		return MarkSuppuration, nil
	}
	return Normal, fmt.Errorf("unknown entry mode %q", s)
}

// Options configures a new exam session.
type Options struct {
	Scheme      chart.Scheme
	Phase       chart.Phase
	SeedMissing []int
	// SeedWisdomTeeth adds 18, 28, 38 and 48 to the missing set.
	SeedWisdomTeeth bool
	// Initial hydrates the store for edit flows.
	Initial      *chart.ExamRecord
	RetryCeiling int

	Voice      voice.Settings
	Parser     *voice.Parser
	Recognizer voice.Recognizer
	Clock      func() time.Time

	OnError func(error)
}

// Notice is an entry of the session's error and advisory log.
type Notice struct {
	At      time.Time `json:"at"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
}

const maxNotices = 20

// Controller runs one exam session. It is not safe for concurrent use: every entry point must
// be called from one goroutine at a time, which Manager guarantees with a per-session queue.
type Controller struct {
	scheme chart.Scheme
	phase  chart.Phase
	store  *chart.Store
	cursor *chart.Cursor
	mode   EntryMode

	adapter   *voice.Adapter
	recording *voice.Recording
	lastVoice *voice.Result
	dispatch  func(func())

	now     func() time.Time
	onError func(error)
	notices []Notice
	closed  bool
	log     *zap.Logger
}

func NewController(opts Options, log *zap.Logger) (*Controller, error) {
	if log == nil {
		log = zap.NewNop()
	}
	scheme := opts.Scheme
	if scheme == "" && opts.Initial != nil {
		scheme = opts.Initial.Scheme
	}
	scheme, err := chart.ParseScheme(string(scheme))
	if err != nil {
		return nil, err
	}
	// A record keeps the keys of the scheme it was charted with.
	if opts.Initial != nil && opts.Initial.Scheme != "" {
		if saved, err := chart.ParseScheme(string(opts.Initial.Scheme)); err != nil || saved != scheme {
			return nil, fmt.Errorf("%w: %s record opened as %s", ErrSchemeMismatch, opts.Initial.Scheme, scheme)
		}
	}
	phase := opts.Phase
	if phase == chart.PhaseNone && opts.Initial != nil {
		phase = opts.Initial.Phase
	}
	phase, err = chart.ParsePhase(string(phase))
	if err != nil {
		return nil, err
	}

	seed := chart.NewToothSet(opts.SeedMissing)
	if opts.SeedWisdomTeeth {
		for _, t := range chart.WisdomTeeth {
			seed.Add(t)
		}
	}
	var store *chart.Store
	if opts.Initial != nil {
		store = chart.StoreFromRecord(*opts.Initial, seed)
	} else {
		store = chart.NewStore(seed)
	}

	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	c := &Controller{
		scheme:   scheme,
		phase:    phase,
		store:    store,
		cursor:   chart.NewCursor(scheme, store.Missing(), opts.RetryCeiling),
		now:      now,
		onError:  opts.OnError,
		log:      log,
		dispatch: func(fn func()) { fn() },
	}
	c.adapter = voice.NewAdapter(opts.Parser, opts.Voice, log)
	c.adapter.SetClock(now)
	c.recording = voice.NewRecording(opts.Recognizer, voice.RecordingHooks{
		Deliver: func(ev voice.Event) {
			c.dispatch(func() {
				if _, err := c.OnVoiceUtterance(ev); err != nil {
					c.reportError(err)
				}
			})
		},
		OnError: func(err error) {
			c.dispatch(func() { c.OnRecognitionError(err) })
		},
		OnActive: func(on bool) {
			log.Debug("Voice recording state changed", zap.Bool("recording", on))
		},
	}, log)

	log.Debug("Exam session started",
		zap.String("scheme", string(scheme)),
		zap.String("phase", string(phase)),
		zap.Ints("missing", store.Missing().Sorted()),
		zap.String("cursor", c.cursor.Key().String()))
	return c, nil
}

func (c *Controller) Scheme() chart.Scheme      { return c.scheme }
func (c *Controller) Phase() chart.Phase        { return c.phase }
func (c *Controller) Cursor() chart.Position    { return c.cursor.Position() }
func (c *Controller) EntryMode() EntryMode      { return c.mode }
func (c *Controller) VoiceMode() voice.Mode     { return c.adapter.Mode() }
func (c *Controller) Store() *chart.Store       { return c.store }
func (c *Controller) Closed() bool              { return c.closed }
func (c *Controller) Recording() bool           { return c.recording.Recording() }
func (c *Controller) LastVoice() *voice.Result  { return c.lastVoice }
func (c *Controller) Notices() []Notice         { return append([]Notice(nil), c.notices...) }
func (c *Controller) VoiceAvailable() bool      { return c.recording.Available() }
func (c *Controller) Advisory() *voice.Advisory { return c.adapter.Advisory() }

func (c *Controller) open() error {
	if c.closed {
		return ErrSessionClosed
	}
	return nil
}

// OnKeypadDigit writes a pocket depth at the cursor and advances past missing teeth.
func (c *Controller) OnKeypadDigit(value int) (chart.Position, error) {
	if err := c.open(); err != nil {
		return c.cursor.Position(), err
	}
	if !utils.IsKeypadValue(value) {
		return c.cursor.Position(), fmt.Errorf("keypad value %d: %w", value, ErrInvalidValue)
	}
	key := c.cursor.Key()
	if err := c.cursor.WriteValue(c.store, value); err != nil {
		return c.cursor.Position(), err
	}
	c.log.Debug("Depth entered", zap.String("key", key.String()), zap.Int("value", value),
		zap.String("next", c.cursor.Key().String()))
	return c.cursor.Position(), nil
}

// OnSkip advances the cursor without writing.
func (c *Controller) OnSkip() (chart.Position, error) {
	if err := c.open(); err != nil {
		return c.cursor.Position(), err
	}
	return c.cursor.Advance(c.store.Missing()), nil
}

// ClickResult reports what a cell click did.
type ClickResult struct {
	Moved  bool           `json:"moved"`
	Key    string         `json:"key"`
	Marked bool           `json:"marked"`
	Cursor chart.Position `json:"cursor"`
}

// OnCellClick toggles the bleeding or suppuration flag under pos in a mark mode and moves the
// cursor there otherwise.
func (c *Controller) OnCellClick(pos chart.Position) (ClickResult, error) {
	res := ClickResult{Cursor: c.cursor.Position()}
	if err := c.open(); err != nil {
		return res, err
	}
	if !c.scheme.Contains(pos) {
		return res, fmt.Errorf("%+v: %w", pos, chart.ErrOutOfGrid)
	}
	key := chart.KeyAt(c.scheme, pos)
	res.Key = key.String()

	var err error
	switch c.mode {
	case MarkBleeding:
		res.Marked, err = c.store.ToggleBleeding(key)
	case MarkSuppuration:
		res.Marked, err = c.store.ToggleSuppuration(key)
	default:
		err = c.cursor.MoveTo(pos, c.store.Missing())
		res.Moved = err == nil
		res.Cursor = c.cursor.Position()
	}
	return res, err
}

// OnNavigate moves the cursor one cell on screen.
func (c *Controller) OnNavigate(dir chart.Direction) (chart.Position, error) {
	if err := c.open(); err != nil {
		return c.cursor.Position(), err
	}
	return c.cursor.Navigate(dir, c.store.Missing()), nil
}

func (c *Controller) OnPlaqueToggle(tooth int, q chart.Quadrant) (bool, error) {
	if err := c.open(); err != nil {
		return false, err
	}
	if !chart.IsValidTooth(tooth) {
		return false, fmt.Errorf("tooth %d: %w", tooth, ErrInvalidValue)
	}
	return c.store.TogglePlaque(chart.PlaqueKey{Tooth: tooth, Quadrant: q})
}

// OnMobilityEntry sets a tooth's mobility from the keypad. The keypad range applies.
func (c *Controller) OnMobilityEntry(tooth, value int) error {
	if err := c.open(); err != nil {
		return err
	}
	if !chart.IsValidTooth(tooth) {
		return fmt.Errorf("tooth %d: %w", tooth, ErrInvalidValue)
	}
	if !utils.IsMobilityEntry(value) {
		return fmt.Errorf("mobility %d: %w", value, ErrInvalidValue)
	}
	return c.store.SetMobility(tooth, value)
}

// ToggleEntryMode switches to mode, or back to Normal when mode is already active.
func (c *Controller) ToggleEntryMode(mode EntryMode) (EntryMode, error) {
	if err := c.open(); err != nil {
		return c.mode, err
	}
	if c.mode == mode {
		c.mode = Normal
	} else {
		c.mode = mode
	}
	return c.mode, nil
}

// OnVoiceUtterance handles one recognizer result. Depth values land as one batch at the cursor.
func (c *Controller) OnVoiceUtterance(ev voice.Event) (voice.Result, error) {
	if err := c.open(); err != nil {
		return voice.Result{}, err
	}
	res, err := c.adapter.Handle(ev, voiceTarget{c})
	if !res.Live && !res.Duplicate {
		c.lastVoice = &res
	}
	if res.Advisory != nil {
		c.notice("advisory", res.Advisory.Message)
	}
	return res, err
}

// SetVoiceMode changes the dictation mode. It is refused while recording.
func (c *Controller) SetVoiceMode(m voice.Mode) error {
	if err := c.open(); err != nil {
		return err
	}
	if c.recording.Recording() {
		return ErrVoiceModeLocked
	}
	c.adapter.SetMode(m)
	return nil
}

func (c *Controller) StartRecording(ctx context.Context) error {
	if err := c.open(); err != nil {
		return err
	}
	return c.recording.Start(ctx)
}

func (c *Controller) StopRecording() error {
	return c.recording.Stop()
}

// OnRecognitionError records a recognizer failure. Store state is never touched.
func (c *Controller) OnRecognitionError(err error) {
	if err == nil {
		return
	}
	c.reportError(err)
}

// PlanBulkFill previews a bulk fill without writing.
func (c *Controller) PlanBulkFill(kind chart.BulkKind, value int) (chart.BulkPlan, error) {
	return chart.PlanBulkFill(kind, value, c.scheme, c.store.Missing())
}

// OnBulkFill overwrites kind on every present tooth once confirm accepts the plan.
func (c *Controller) OnBulkFill(kind chart.BulkKind, value int, confirm func(chart.BulkPlan) bool) (chart.BulkPlan, error) {
	if err := c.open(); err != nil {
		return chart.BulkPlan{}, err
	}
	plan, err := c.PlanBulkFill(kind, value)
	if err != nil {
		return plan, err
	}
	if confirm == nil || !confirm(plan) {
		return plan, ErrConfirmationRequired
	}
	if err := chart.ApplyBulkFill(c.store, plan); err != nil {
		return plan, err
	}
	c.log.Info("Bulk fill applied", zap.String("kind", string(kind)), zap.Int("value", value), zap.Int("writes", plan.Len()))
	return plan, nil
}

// Record snapshots the session without closing it.
func (c *Controller) Record() chart.ExamRecord {
	return c.store.Snapshot(c.scheme, c.phase)
}

// Commit closes the session and returns its record.
func (c *Controller) Commit() (chart.ExamRecord, error) {
	if err := c.open(); err != nil {
		return chart.ExamRecord{}, err
	}
	rec := c.Record()
	c.close()
	return rec, nil
}

// Cancel closes the session and discards everything entered.
func (c *Controller) Cancel() error {
	if err := c.open(); err != nil {
		return err
	}
	c.close()
	return nil
}

func (c *Controller) close() {
	if c.recording.Recording() {
		if err := c.recording.Stop(); err != nil {
			c.log.Warn("Failed to stop recording on close", zap.Error(err))
		}
	}
	c.closed = true
}

func (c *Controller) reportError(err error) {
	c.log.Error("Exam session error", zap.Error(err))
	c.notice("error", err.Error())
	if c.onError != nil {
		c.onError(err)
	}
}

func (c *Controller) notice(kind, msg string) {
	c.notices = append(c.notices, Notice{At: c.now(), Kind: kind, Message: msg})
	if len(c.notices) > maxNotices {
		c.notices = c.notices[len(c.notices)-maxNotices:]
	}
}

// voiceTarget routes parsed dictation into the session's store and cursor.
type voiceTarget struct{ c *Controller }

func (t voiceTarget) WriteDepths(values []int) (int, error) {
	return t.c.cursor.WriteValues(t.c.store, values)
}

func (t voiceTarget) MarkBleeding(tooth int, point chart.Point, allPoints bool) (int, error) {
	if !allPoints {
		// Bleeding shares the depth key space: a site the scheme does not collect is refused.
		if !t.c.scheme.HasPoint(point) {
			return 0, fmt.Errorf("point %s under %s scheme: %w", point, t.c.scheme, chart.ErrOutOfGrid)
		}
		if err := t.c.store.MarkBleeding(chart.SiteKey{Tooth: tooth, Point: point}); err != nil {
			return 0, err
		}
		return 1, nil
	}
	points := t.c.scheme.ToothPoints()
	for _, p := range points {
		if err := t.c.store.MarkBleeding(chart.SiteKey{Tooth: tooth, Point: p}); err != nil {
			return 0, err
		}
	}
	return len(points), nil
}

func (t voiceTarget) SetMobility(tooth, degree int) error {
	return t.c.store.SetMobility(tooth, degree)
}
