// Package main provides the reader engine CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/observability"
)

const version = "0.1.0"

var (
	// Global flags
	cfgFile    string
	outputJSON bool
	verbose    bool
	noColor    bool

	cfg    *config.Config
	logger *observability.Logger
	ui     *UI
)

var rootCmd = &cobra.Command{
	Use:   "reader-engine",
	Short: "Read, highlight and export the stored PDF book",
	Long: `reader-engine drives the PDF reader core from the terminal.

Use this tool to:
- Import a PDF as the current book and resume where you left off
- Turn pages and zoom, persisting the reading position
- Render pages to PNG with highlights and themes applied
- Add highlights and export a highlighted copy of the PDF`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load() // Ignore error if .env doesn't exist

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := cfg.Observability.LogLevel
		if verbose {
			level = "debug"
		}
		format := cfg.Observability.LogFormat
		if outputJSON {
			format = "json"
		}
		logger = observability.NewLogger(observability.LogConfig{
			Level:       level,
			Format:      format,
			Output:      os.Stderr,
			ServiceName: "reader-engine-cli",
		})
		ui = NewUI(outputJSON, noColor)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newBookCmd())
	rootCmd.AddCommand(newPageCmd())
	rootCmd.AddCommand(newZoomCmd())
	rootCmd.AddCommand(newRenderCmd())
	rootCmd.AddCommand(newHighlightCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newApp builds the services for one command.
func newApp() (*app.App, error) {
	return app.New(cfg, logger)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			if outputJSON {
				printJSON(map[string]string{"version": version})
				return
			}
			fmt.Printf("reader-engine version %s\n", version)
		},
	}
}
