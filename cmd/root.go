// Package cmd contains the CLI commands for seriesgraph
package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Global vars needed for cobra CLI
var (
	cfgFile string
	logger  *logrus.Logger
)

// rootCmd represents the base command
//
//nolint:gochecknoglobals // Cobra commands are typically global
var rootCmd = &cobra.Command{
	Use:   "seriesgraph",
	Short: "Build and evaluate compute expressions over platform channels",
	Long: `seriesgraph builds compute expressions over asset, run and datasource channels,
evaluates them into time buckets on the platform, manages reusable expression
modules and streams points into datasources.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error, fatal, panic), overrides the config file")

	// Initialize logger
	logger = logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetOutput(os.Stderr)
}

func initConfig() {
	if cfgFile == "" {
		cfgFile = "./config.yaml"
	}
}

// loadConfig reads and validates the config file and applies the log level.
func loadConfig(cmd *cobra.Command) (*CLIConfig, error) {
	cfg, err := LoadCLIConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	logLevel := cfg.Logging
	if cmd.Flags().Changed("log-level") {
		if flagLevel, flagErr := cmd.Flags().GetString("log-level"); flagErr == nil {
			logLevel = flagLevel
		}
	}

	level, parseErr := logrus.ParseLevel(logLevel)
	if parseErr != nil {
		logger.WithError(parseErr).Warn("Invalid log level, defaulting to info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
