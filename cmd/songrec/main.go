package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"songrecognition/internal/config"
)

var version = "dev"

type rootFlags struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "songrec",
		Short:         "Identify the song played in a video or audio file",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to config file (YAML or TOML)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "show detailed output")

	root.AddCommand(
		newServeCmd(flags),
		newRecognizeCmd(flags),
		newInitConfigCmd(),
	)
	return root
}

// loadConfig applies the priority CLI flags > env > config file > defaults.
func (f *rootFlags) loadConfig() (config.Config, error) {
	cfg, err := config.LoadConfigFile(f.configPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	if f.verbose {
		cfg.Log.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(1)
	}
}
