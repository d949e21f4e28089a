// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the corpus-engine CLI.
//
// Implements: prd006-cli (command surface over prd001-ingest, prd003-dedup,
// prd004-enrich, and prd005-audit).
// See docs/ARCHITECTURE.md § Pipeline Interface.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/corpus-engine/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API credentials read from .secrets/ at startup. They
// fill any credential fields the config file and environment left empty.
var loadedSecrets map[string]string

var rootCmd = &cobra.Command{
	Use:   "corpus-engine",
	Short: "Identity resolution and enrichment for systematic-review corpora",
	Long: `corpus-engine builds a screening-ready corpus from multi-database
literature search exports: records that refer to the same publication are
resolved into one cluster, missing abstracts are recovered from external
bibliographic APIs, and every merge and lookup lands in an audit trail.

The pipeline stages are subcommands: dedupe, enrich, and run (both stages
under one run ID). report prints recorded run summaries from the audit
store.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./corpus-engine.yaml or ~/.config/corpus-engine/)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("corpus-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "corpus-engine"))
		}
	}

	viper.SetEnvPrefix("CORPUS_ENGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the run-level structured logger. Stage progress goes to
// stdout; the logger carries per-record events on stderr so the two streams
// can be separated.
func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(viper.GetString("logging.level"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// stringSetting reads a command flag, falling back to the viper key and
// then the built-in default.
func stringSetting(cmd *cobra.Command, flag, key, fallback string) string {
	if v, _ := cmd.Flags().GetString(flag); v != "" {
		return v
	}
	if v := viper.GetString(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
