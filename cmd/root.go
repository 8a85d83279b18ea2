package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"laptop-lending/internal/config"
)

var envFiles []string

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:          "laptop-lending",
	Short:        "Laptop lending allocation service",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Env files to load before reading the environment (default .env when present)")
	rootCmd.AddCommand(serveCmd, exportCmd, tokenCmd)
}

func loadConfig() (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, cfg.NewLogger(), nil
}
