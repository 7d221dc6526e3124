package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perio-go/internal/config"
)

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.ExamConfig{
		SeedWisdomTeeth:     true,
		RetryCeiling:        50,
		DuplicateWindowMS:   250,
		ConfidenceThreshold: 0.6,
		AdvisoryTTLMS:       1500,
	}
	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)

	assert.True(t, opts.SeedWisdomTeeth)
	assert.Equal(t, 50, opts.RetryCeiling)
	assert.Equal(t, 250*time.Millisecond, opts.Voice.DuplicateWindow)
	assert.Equal(t, 1500*time.Millisecond, opts.Voice.AdvisoryTTL)
	assert.InDelta(t, 0.6, opts.Voice.ConfidenceThreshold, 1e-9)
	require.NotNil(t, opts.Parser)
	n, ok := opts.Parser.Number("five")
	assert.True(t, ok)
	assert.Equal(t, 5, n)
}

func TestOptionsFromConfigVocabularyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	require.NoError(t, os.WriteFile(path, []byte("numbers:\n  4: [\"fower\"]\n"), 0o644))

	opts, err := OptionsFromConfig(config.ExamConfig{VocabularyFile: path})
	require.NoError(t, err)
	n, ok := opts.Parser.Number("fower")
	assert.True(t, ok)
	assert.Equal(t, 4, n)

	_, err = OptionsFromConfig(config.ExamConfig{VocabularyFile: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}
