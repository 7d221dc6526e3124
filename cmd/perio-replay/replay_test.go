package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"perio-go/internal/chart"
	"perio-go/internal/metrics"
	"perio-go/internal/session"
	"perio-go/internal/voice"
)

func testDefaults() session.Options {
	return session.Options{
		SeedWisdomTeeth: true,
		Voice: voice.Settings{
			DuplicateWindow:     400 * time.Millisecond,
			ConfidenceThreshold: 0.7,
			AdvisoryTTL:         3 * time.Second,
		},
		Parser: voice.NewParser(nil),
	}
}

func loadTestScript(t *testing.T) *Script {
	t.Helper()
	s, err := LoadScript("testdata/script.yaml")
	require.NoError(t, err)
	return s
}

func TestReplayScript(t *testing.T) {
	s := loadTestScript(t)
	require.Len(t, s.Steps, 17)
	assert.Equal(t, time.Second, s.Steps[6].Wait)

	report, err := Replay(context.Background(), s, ReplayOptions{Defaults: testDefaults()}, zap.NewNop())
	require.NoError(t, err)

	assert.True(t, report.Committed)
	assert.Equal(t, "P-100", report.Patient)
	assert.Equal(t, chart.SchemeSix, report.Scheme)
	assert.Equal(t, chart.PhaseExam1, report.Phase)
	assert.Equal(t, []int{18, 28, 36, 38, 48}, report.MissingTeeth)

	// The repeated utterance is dropped; the recognizer batch lands after it.
	assert.Equal(t, map[string]int{
		"17_db": 5, "17_b": 4, "17_mb": 3,
		"16_db": 2, "16_b": 3, "16_mb": 2,
		"15_db": 4, "15_b": 4,
	}, report.Depth)
	assert.Equal(t, []string{"17_db"}, report.Bleeding)
	assert.Empty(t, report.Suppuration)
	assert.Equal(t, []string{"17_top"}, report.Plaque)
	assert.Equal(t, map[int]int{26: 2}, report.Mobility)

	require.Len(t, report.Errors, 2)
	assert.Contains(t, report.Errors[0], "step 4")
	assert.Contains(t, report.Errors[1], "step 13")

	require.Len(t, report.Notices, 1)
	assert.Contains(t, report.Notices[0], "network")

	var mean *MetricLine
	for i := range report.Metrics {
		if report.Metrics[i].Scope == metrics.ScopeGlobal && report.Metrics[i].Key == metrics.KeyMeanPPD {
			mean = &report.Metrics[i]
		}
	}
	require.NotNil(t, mean)
	assert.Equal(t, 8, mean.SampleSize)
	assert.InDelta(t, 27.0/8, mean.Value, 1e-9)
}

func TestReplayStrictStopsAtFirstFailure(t *testing.T) {
	s := loadTestScript(t)

	_, err := Replay(context.Background(), s, ReplayOptions{Defaults: testDefaults(), Strict: true}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 4")
	assert.ErrorIs(t, err, session.ErrInvalidValue)
}

func TestReplayWithoutCommit(t *testing.T) {
	s := &Script{Steps: []Step{{Skip: true}, {Navigate: "right"}}}

	report, err := Replay(context.Background(), s, ReplayOptions{Defaults: testDefaults(), NoCommit: true}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, report.Committed)
	require.NotNil(t, report.Cursor)
	assert.Empty(t, report.Depth)
	assert.Equal(t, chart.SchemeSix, report.Scheme)
}

func TestReplayRejectsBadHeader(t *testing.T) {
	_, err := Replay(context.Background(), &Script{Scheme: "eight"}, ReplayOptions{Defaults: testDefaults()}, zap.NewNop())
	assert.Error(t, err)

	_, err = Replay(context.Background(), &Script{Phase: "P_EXAM_9"}, ReplayOptions{Defaults: testDefaults()}, zap.NewNop())
	assert.Error(t, err)
}

func TestReplayEmptyStep(t *testing.T) {
	report, err := Replay(context.Background(), &Script{Steps: []Step{{}}}, ReplayOptions{Defaults: testDefaults()}, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "empty step")
}

func TestTraversalOrder(t *testing.T) {
	visits := TraversalOrder(chart.SchemeSix, chart.NewToothSet(chart.WisdomTeeth))
	require.Len(t, visits, 168)
	assert.Equal(t, "17_db", visits[0].Key)
	assert.Equal(t, "37_mb", visits[len(visits)-1].Key)

	seen := make(map[string]bool)
	for _, v := range visits {
		assert.False(t, seen[v.Key], "visited %s twice", v.Key)
		seen[v.Key] = true
	}

	assert.Len(t, TraversalOrder(chart.SchemeSingle, nil), 32)
	assert.Empty(t, TraversalOrder(chart.SchemeSix, chart.NewToothSet(chart.AllTeeth())))
}

func TestRunCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"run", "testdata/script.yaml", "--format", "json", "--config-root", t.TempDir(), "--strict=false", "--no-commit=false"})
	require.NoError(t, rootCmd.Execute())

	var report Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.True(t, report.Committed)
	assert.Equal(t, 5, report.Depth["17_db"])
	assert.Len(t, report.Errors, 2)
}

func TestParseCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"parse", "3 2 4", "--mode", "depth", "--format", "yaml", "--config-root", t.TempDir()})
	require.NoError(t, rootCmd.Execute())

	var u voice.Utterance
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &u))
	assert.Equal(t, voice.ModeDepth, u.Mode)
	assert.Equal(t, []int{3, 2, 4}, u.Depths)
}

func TestTraversalCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"traversal", "--scheme", "four", "--without-wisdom", "--format", "yaml"})
	require.NoError(t, rootCmd.Execute())

	var visits []Visit
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &visits))
	require.Len(t, visits, 112)
	assert.Equal(t, 1, visits[0].Step)
}
