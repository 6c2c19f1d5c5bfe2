// akctl drives an authority kernel from the command line: key generation,
// cycle execution over artifact files, audit log replay and CAR export.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	verbose bool
	dataDir string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "akctl",
	Short: "Authority kernel control",
	Long: `akctl operates a deterministic policy kernel: it canonicalizes
artifact files, runs admission cycles, persists the hash-chained audit log
and verifies it by full replay.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func main() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir(), "kernel state directory")
	_ = viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))

	rootCmd.AddCommand(
		newKeygenCmd(),
		newRunCmd(),
		newReplayCmd(),
		newExportCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetConfigName("akctl")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(dataDir)
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("AKCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	// A missing config file is fine; flags and env cover everything.
	_ = viper.ReadInConfig()
}

// constitutionPath resolves the constitution file from the command's flag,
// falling back to config or environment when the flag was not set.
func constitutionPath(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("constitution")
	if !cmd.Flags().Changed("constitution") && viper.IsSet("constitution") {
		return viper.GetString("constitution")
	}
	return p
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".akctl"
	}
	return home + "/.akctl"
}
