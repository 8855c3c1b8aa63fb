// Command pagescribe transcribes PDF pages with a vision model from the
// terminal, writing the result next to the source file.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/pagescribe/internal/config"
)

var (
	settingsFile string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:           "pagescribe",
	Short:         "Transcribe or translate PDF pages with a vision model",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsFile, "settings", "", "YAML settings file (prompts, render, markers)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(pagesCmd, estimateCmd, transcribeCmd, exportCmd)
}

func loadSettings() (*config.Settings, error) {
	if settingsFile == "" {
		settingsFile = os.Getenv("SETTINGS_FILE")
	}
	return config.LoadSettings(settingsFile)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
