package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"perio-go/internal/config"
	"perio-go/internal/session"
	"perio-go/internal/voice"
)

var (
	runStrict   bool
	runNoCommit bool
)

var runCmd = &cobra.Command{
	Use:   "run <script.yaml>",
	Short: "Replay a recorded charting session and print the resulting exam",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		script, err := LoadScript(args[0])
		if err != nil {
			return err
		}
		defaults, err := loadDefaults(configRoot, vocabularyFile)
		if err != nil {
			return err
		}
		report, err := Replay(cmd.Context(), script, ReplayOptions{
			Defaults: defaults,
			Strict:   runStrict,
			NoCommit: runNoCommit,
		}, log)
		if err != nil {
			return err
		}
		return writeOut(cmd.OutOrStdout(), format, report)
	},
}

// loadDefaults builds session options from the same config sources the server reads.
func loadDefaults(root, vocabulary string) (session.Options, error) {
	if root == "" {
		root = "."
	}
	_, conf, err := config.Load(root)
	if err != nil {
		return session.Options{}, err
	}
	if vocabulary != "" {
		conf.Exam.VocabularyFile = vocabulary
	}
	return session.OptionsFromConfig(conf.Exam)
}

func writeOut(w io.Writer, format string, v any) error {
	switch format {
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return fmt.Errorf("unknown output format %q", format)
}

func init() {
	runCmd.Flags().BoolVar(&runStrict, "strict", false, "Stop at the first step that fails")
	runCmd.Flags().BoolVar(&runNoCommit, "no-commit", false, "Report the open session instead of committing it")
	rootCmd.AddCommand(runCmd)
}

var (
	parseMode       string
	parseConfidence float64
)

var parseCmd = &cobra.Command{
	Use:   "parse <text>",
	Short: "Show how a spoken phrase is parsed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := voice.ParseMode(parseMode)
		if err != nil {
			return err
		}
		defaults, err := loadDefaults(configRoot, vocabularyFile)
		if err != nil {
			return err
		}
		u := defaults.Parser.Parse(args[0], mode, parseConfidence)
		return writeOut(cmd.OutOrStdout(), format, u)
	},
}

func init() {
	parseCmd.Flags().StringVarP(&parseMode, "mode", "m", string(voice.ModeDepth), "Voice mode the phrase is spoken in")
	parseCmd.Flags().Float64VarP(&parseConfidence, "confidence", "c", 1, "Recognizer confidence of the phrase")
	rootCmd.AddCommand(parseCmd)
}
