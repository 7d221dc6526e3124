package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	logger "perio-go/internal/logging"
)

var (
	verbose        bool
	format         string
	configRoot     string
	vocabularyFile string
	log            = zap.NewNop()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "perio-replay",
	Short: "Replay and inspect periodontal charting sessions offline",
	Long: `perio-replay drives the charting engine without a server or database.
It replays recorded sessions, parses spoken phrases and prints traversal orders.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log = logger.NewConsole(verbose)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", "yaml", "Output format (yaml or json)")
	rootCmd.PersistentFlags().StringVar(&configRoot, "config-root", ".", "Directory holding config/config.yaml")
	rootCmd.PersistentFlags().StringVar(&vocabularyFile, "vocabulary", "", "Vocabulary YAML overriding the configured one")
}
