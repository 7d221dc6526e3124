package session

import (
	"fmt"

	"perio-go/internal/config"
	"perio-go/internal/voice"
)

// VoiceSettings converts the exam configuration into adapter settings.
func VoiceSettings(cfg config.ExamConfig) voice.Settings {
	return voice.Settings{
		DuplicateWindow:     cfg.DuplicateWindow(),
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		AdvisoryTTL:         cfg.AdvisoryTTL(),
	}
}

// OptionsFromConfig builds the defaults every session starts from. A configured vocabulary file
// is overlaid on the built-in vocabulary.
func OptionsFromConfig(cfg config.ExamConfig) (Options, error) {
	vocab := voice.DefaultVocabulary()
	if cfg.VocabularyFile != "" {
		loaded, err := voice.LoadVocabulary(cfg.VocabularyFile)
		if err != nil {
			return Options{}, fmt.Errorf("load vocabulary: %w", err)
		}
		vocab = loaded
	}
	return Options{
		SeedWisdomTeeth: cfg.SeedWisdomTeeth,
		RetryCeiling:    cfg.RetryCeiling,
		Voice:           VoiceSettings(cfg),
		Parser:          voice.NewParser(vocab),
	}, nil
}
