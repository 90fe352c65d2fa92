package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/brensch/snekgym/config"
	"github.com/brensch/snekgym/logging"
)

const (
	envConfig   = "SNEKGYM_CONFIG"
	envLogLevel = "SNEKGYM_LOG_LEVEL"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	for _, envFile := range []string{
		".env",
		"../../.env",
	} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:          "snekgym",
		Short:        "Evolve single-snake policies on a grid",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv(envConfig), "YAML config file (env "+envConfig+")")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", os.Getenv(envLogLevel), "debug, info, warn or error (env "+envLogLevel+")")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "text, json or pretty")

	rootCmd.AddCommand(newTrainCmd(opts), newPlayCmd(opts), newConfigCmd(opts))
	return rootCmd
}

// load reads the config file and applies the root logging flags.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(w, logging.Options{Level: level, Format: cfg.Logging.Format})
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			data, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}
