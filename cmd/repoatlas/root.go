package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/repoatlas/repoatlas/internal/config"
)

var (
	cfgFile string
	vcfg    = viper.New()

	// logSink is where component loggers write. Defaults to stderr; a
	// configured log file adds a rotating sink alongside it.
	logSink io.Writer = os.Stderr
)

var rootCmd = &cobra.Command{
	Use:   "repoatlas",
	Short: "Discover git repositories and record what they contain",
	Long: `repoatlas walks configured directory trees looking for git
repositories, inspects each one (branches, root commits, remotes,
description), follows the remotes it finds, and records everything in a
local SQLite atlas keyed by host and location.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.config/repoatlas/config.yaml)")
	rootCmd.PersistentFlags().String("log-file", "", "rotating log file (logs always go to stderr too)")

	cobra.CheckErr(vcfg.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file")))

	config.SetDefaults(vcfg)
}

// initConfig wires the config file and environment into viper and sets
// up the log sink. Flag bindings happen in each command's init.
func initConfig() error {
	if cfgFile != "" {
		vcfg.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			vcfg.AddConfigPath(home + "/.config/repoatlas")
		}
		vcfg.AddConfigPath(".")
		vcfg.SetConfigName("config")
		vcfg.SetConfigType("yaml")
	}

	vcfg.SetEnvPrefix("REPOATLAS")
	vcfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vcfg.AutomaticEnv()

	if err := vcfg.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	if file := vcfg.GetString("log.file"); file != "" {
		logSink = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    vcfg.GetInt("log.max_size_mb"),
			MaxBackups: vcfg.GetInt("log.max_backups"),
		})
	}

	return nil
}

// newLogger builds a component logger writing to the shared sink.
func newLogger(prefix string) *log.Logger {
	return log.New(logSink, prefix, log.LstdFlags)
}

// loadConfig returns the validated effective configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(vcfg)
}
