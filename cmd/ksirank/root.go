package main

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"ksi-rank/internal/cfg"
)

// version is set via -ldflags at build time.
var version = "(devel)"

var rootCmd = &cobra.Command{
	Use:           "ksirank",
	Short:         "Consensus feature ranking for KSI collision data",
	Long:          "ksirank recodes a killed-or-seriously-injured collision table, runs several feature selectors over it and ranks features by how many selectors kept them.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("ksirank", version)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().String("store", "", "Run history directory (overrides STORE_PATH)")
	rootCmd.PersistentFlags().String("env-file", ".env", "Optional dotenv file loaded before configuration")

	rootCmd.AddCommand(rankCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadSettings loads the dotenv file, the configuration and the persistent
// flag overrides, then configures logging.
func loadSettings(cmd *cobra.Command) (cfg.Settings, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("file", envFile).Msg("Failed to load env file")
		}
	}

	settings, err := cfg.Load()
	if err != nil {
		return cfg.Settings{}, err
	}

	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		settings.LogLevel = v
	}
	if v, _ := cmd.Flags().GetString("store"); v != "" {
		settings.StorePath = v
	}

	setupLogging(settings.LogLevel)
	return settings, nil
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}
