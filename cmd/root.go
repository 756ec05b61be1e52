// Package cmd provides the command-line interface for assetforge with
// configuration management supporting multiple sources.
//
// Configuration precedence, highest first:
//  1. Command-line flags (--config, --optimize, ...)
//  2. ASSETFORGE_CONFIG_FILE environment variable
//  3. Individual ASSETFORGE_<SECTION>_<OPTION> environment variables
//  4. Configuration file (.assetforge.yml)
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/assetforge/assetforge/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "assetforge",
	Short: "An asset-bundling build pipeline",
	Long: `Assetforge groups watched source files into named output bundles
according to declarative join rules, deterministically orders the files in
each bundle, concatenates them with composed source maps, runs a chain of
optimizer plugins, and writes the output.

Quick Start:
  assetforge build                Run one full generation pass
  assetforge watch                Rebuild on file changes
  assetforge worker               Run a job worker process (internal)`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .assetforge.yml, can also use ASSETFORGE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	bindFlags(rootCmd.PersistentFlags())
}

// bindFlags exposes every flag in the set as a viper key, so flag values
// participate in the normal configuration precedence.
func bindFlags(flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		_ = viper.BindPFlag(f.Name, f)
	})
}

// initConfig initializes the configuration system.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("ASSETFORGE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(".assetforge")
		viper.SetConfigType("yml")
	}

	viper.SetEnvPrefix("ASSETFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// A missing default config file is fine, defaults apply.
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && cfgFile != "" {
			fmt.Fprintf(os.Stderr, "Warning: cannot read config file %s: %v\n", cfgFile, err)
		}
	}
}

// newLogger builds the process logger from the configured level.
func newLogger() logging.Logger {
	return logging.NewLogger(&logging.Config{
		Level:  logging.ParseLevel(viper.GetString("log-level")),
		Format: "text",
		Output: os.Stderr,
	})
}
