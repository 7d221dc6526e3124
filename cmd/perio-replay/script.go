package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"perio-go/internal/chart"
	"perio-go/internal/metrics"
	"perio-go/internal/session"
	"perio-go/internal/voice"
)

// Script is a recorded charting session: the session setup plus the events in the order they
// happened.
type Script struct {
	Patient string `yaml:"patient"`
	Scheme  string `yaml:"scheme"`
	Phase   string `yaml:"phase"`
	Missing []int  `yaml:"missing"`
	Steps   []Step `yaml:"steps"`
}

// Step is one event. Exactly one field is set.
type Step struct {
	Keypad     *int            `yaml:"keypad,omitempty"`
	Skip       bool            `yaml:"skip,omitempty"`
	Click      *chart.Position `yaml:"click,omitempty"`
	Navigate   string          `yaml:"navigate,omitempty"`
	Mode       string          `yaml:"mode,omitempty"`
	Plaque     *PlaqueStep     `yaml:"plaque,omitempty"`
	Mobility   *MobilityStep   `yaml:"mobility,omitempty"`
	VoiceMode  string          `yaml:"voice_mode,omitempty"`
	Say        *voice.Event    `yaml:"say,omitempty"`
	Record     string          `yaml:"record,omitempty"`
	Recognizer *RecognizerStep `yaml:"recognizer,omitempty"`
	Bulk       *BulkStep       `yaml:"bulk,omitempty"`
	Wait       time.Duration   `yaml:"wait,omitempty"`
}

type PlaqueStep struct {
	Tooth    int    `yaml:"tooth"`
	Quadrant string `yaml:"quadrant"`
}

type MobilityStep struct {
	Tooth int `yaml:"tooth"`
	Value int `yaml:"value"`
}

type RecognizerStep struct {
	Kind       string  `yaml:"kind"`
	Transcript string  `yaml:"transcript"`
	Confidence float64 `yaml:"confidence"`
	Final      bool    `yaml:"final"`
	Code       string  `yaml:"code"`
}

type BulkStep struct {
	Kind    string `yaml:"kind"`
	Value   int    `yaml:"value"`
	Confirm bool   `yaml:"confirm"`
}

// LoadScript reads a replay script from a YAML file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal script YAML: %w", err)
	}
	return &s, nil
}

// Report is what a replay prints. Keys are rendered as strings so the output is stable.
type Report struct {
	Patient      string          `yaml:"patient,omitempty" json:"patient,omitempty"`
	Scheme       chart.Scheme    `yaml:"scheme" json:"scheme"`
	Phase        chart.Phase     `yaml:"phase,omitempty" json:"phase,omitempty"`
	Depth        map[string]int  `yaml:"depth" json:"depth"`
	Bleeding     []string        `yaml:"bleeding" json:"bleeding"`
	Suppuration  []string        `yaml:"suppuration" json:"suppuration"`
	Plaque       []string        `yaml:"plaque" json:"plaque"`
	Mobility     map[int]int     `yaml:"mobility" json:"mobility"`
	MissingTeeth []int           `yaml:"missing_teeth" json:"missingTeeth"`
	Metrics      []MetricLine    `yaml:"metrics" json:"metrics"`
	Notices      []string        `yaml:"notices,omitempty" json:"notices,omitempty"`
	Errors       []string        `yaml:"errors,omitempty" json:"errors,omitempty"`
	Committed    bool            `yaml:"committed" json:"committed"`
	Cursor       *chart.Position `yaml:"cursor,omitempty" json:"cursor,omitempty"`
}

type MetricLine struct {
	Scope      string  `yaml:"scope" json:"scope"`
	Key        string  `yaml:"key" json:"key"`
	Value      float64 `yaml:"value" json:"value"`
	SampleSize int     `yaml:"sample_size" json:"sampleSize"`
}

// ReplayOptions controls a replay run.
type ReplayOptions struct {
	Defaults session.Options
	// Strict stops at the first failing step instead of recording it and moving on.
	Strict bool
	// NoCommit leaves the session open and reports its current state.
	NoCommit bool
	Start    time.Time
}

type replayClock struct{ now time.Time }

func (c *replayClock) Now() time.Time { return c.now }

// Replay runs the script through a session manager and commits it.
func Replay(ctx context.Context, s *Script, opts ReplayOptions, log *zap.Logger) (*Report, error) {
	scheme := chart.SchemeSix
	if s.Scheme != "" {
		parsed, err := chart.ParseScheme(s.Scheme)
		if err != nil {
			return nil, err
		}
		scheme = parsed
	}
	phase, err := chart.ParsePhase(s.Phase)
	if err != nil {
		return nil, err
	}

	start := opts.Start
	if start.IsZero() {
		start = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	}
	// Replays run on their own clock so duplicate windows and advisories are reproducible.
	clock := &replayClock{now: start}
	defaults := opts.Defaults
	defaults.Clock = clock.Now

	manager := session.NewManager(defaults, log)
	defer manager.Shutdown(context.Background())

	id, err := manager.Create(session.CreateRequest{
		Scheme:      scheme,
		Phase:       phase,
		SeedMissing: s.Missing,
		Meta:        session.Meta{PatientID: s.Patient},
	})
	if err != nil {
		return nil, err
	}

	report := &Report{Patient: s.Patient}
	for i, step := range s.Steps {
		if step.Wait > 0 {
			clock.now = clock.now.Add(step.Wait)
			continue
		}
		if err := runStep(ctx, manager, id, step); err != nil {
			if opts.Strict {
				return nil, fmt.Errorf("step %d: %w", i+1, err)
			}
			report.Errors = append(report.Errors, fmt.Sprintf("step %d: %v", i+1, err))
			log.Debug("Step failed", zap.Int("step", i+1), zap.Error(err))
		}
	}

	var notices []session.Notice
	var cursor chart.Position
	if err := manager.Do(ctx, id, func(c *session.Controller) error {
		notices = c.Notices()
		cursor = c.Cursor()
		return nil
	}); err != nil {
		return nil, err
	}
	for _, n := range notices {
		report.Notices = append(report.Notices, n.Kind+": "+n.Message)
	}

	var rec chart.ExamRecord
	if opts.NoCommit {
		if err := manager.Do(ctx, id, func(c *session.Controller) error {
			rec = c.Record()
			return nil
		}); err != nil {
			return nil, err
		}
		report.Cursor = &cursor
	} else {
		rec, err = manager.Commit(ctx, id, nil)
		if err != nil {
			return nil, err
		}
		report.Committed = true
	}
	fillReport(report, rec)
	return report, nil
}

func runStep(ctx context.Context, m *session.Manager, id string, step Step) error {
	// Recognizer events enter the stream from outside the session queue.
	if r := step.Recognizer; r != nil {
		kind, err := voice.ParseProviderEventKind(r.Kind)
		if err != nil {
			return err
		}
		return m.Feed(id, voice.ProviderEvent{
			Kind:   kind,
			Result: voice.Event{Transcript: r.Transcript, Confidence: r.Confidence, IsFinal: r.Final},
			Code:   r.Code,
		})
	}

	return m.Do(ctx, id, func(c *session.Controller) error {
		switch {
		case step.Keypad != nil:
			_, err := c.OnKeypadDigit(*step.Keypad)
			return err
		case step.Skip:
			_, err := c.OnSkip()
			return err
		case step.Click != nil:
			_, err := c.OnCellClick(*step.Click)
			return err
		case step.Navigate != "":
			dir, err := chart.ParseDirection(step.Navigate)
			if err != nil {
				return err
			}
			_, err = c.OnNavigate(dir)
			return err
		case step.Mode != "":
			mode, err := session.ParseEntryMode(step.Mode)
			if err != nil {
				return err
			}
			_, err = c.ToggleEntryMode(mode)
			return err
		case step.Plaque != nil:
			q, err := chart.ParseQuadrant(step.Plaque.Quadrant)
			if err != nil {
				return err
			}
			_, err = c.OnPlaqueToggle(step.Plaque.Tooth, q)
			return err
		case step.Mobility != nil:
			return c.OnMobilityEntry(step.Mobility.Tooth, step.Mobility.Value)
		case step.VoiceMode != "":
			mode, err := voice.ParseMode(step.VoiceMode)
			if err != nil {
				return err
			}
			return c.SetVoiceMode(mode)
		case step.Say != nil:
			ev := *step.Say
			ev.IsFinal = true
			_, err := c.OnVoiceUtterance(ev)
			return err
		case step.Record == "start":
			return c.StartRecording(context.Background())
		case step.Record == "stop":
			return c.StopRecording()
		case step.Bulk != nil:
			kind, err := chart.ParseBulkKind(step.Bulk.Kind)
			if err != nil {
				return err
			}
			confirm := step.Bulk.Confirm
			_, err = c.OnBulkFill(kind, step.Bulk.Value, func(chart.BulkPlan) bool { return confirm })
			return err
		}
		return errors.New("empty step")
	})
}

func fillReport(r *Report, rec chart.ExamRecord) {
	r.Scheme = rec.Scheme
	r.Phase = rec.Phase
	r.MissingTeeth = rec.MissingTeeth
	r.Mobility = rec.Mobility

	r.Depth = make(map[string]int, len(rec.Depth))
	for k, v := range rec.Depth {
		r.Depth[k.String()] = v
	}
	r.Bleeding = trueKeys(rec.Bleeding)
	r.Suppuration = trueKeys(rec.Suppuration)
	for k, v := range rec.Plaque {
		if v {
			r.Plaque = append(r.Plaque, k.String())
		}
	}
	sort.Strings(r.Plaque)

	for _, m := range metrics.CalculateExamMetrics(rec).All() {
		r.Metrics = append(r.Metrics, MetricLine{Scope: m.Scope, Key: m.MetricKey, Value: m.MetricValue, SampleSize: m.SampleSize})
	}
}

func trueKeys(m map[chart.SiteKey]bool) []string {
	var out []string
	for k, v := range m {
		if v {
			out = append(out, k.String())
		}
	}
	sort.Strings(out)
	return out
}
