package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"ksi-rank/internal/cfg"
	"ksi-rank/internal/consensus"
	"ksi-rank/internal/dataset"
	"ksi-rank/internal/metrics"
	"ksi-rank/internal/report"
	"ksi-rank/internal/selection"
	"ksi-rank/internal/storage"
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Recode the collision table and compute a consensus feature ranking",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := applyRankFlags(cmd, &settings); err != nil {
			return err
		}
		noStore, _ := cmd.Flags().GetBool("no-store")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runRank(ctx, cmd, settings, !noStore)
	},
}

func init() {
	rankCmd.Flags().String("data", "", "Collision CSV (overrides DATA_PATH)")
	rankCmd.Flags().String("recode", "", "Recoding YAML (overrides RECODE_PATH)")
	rankCmd.Flags().IntP("features", "k", 0, "Features each selector keeps (overrides NUM_FEATURES)")
	rankCmd.Flags().StringSlice("selectors", nil, "Selectors to run (overrides SELECTORS)")
	rankCmd.Flags().Int64("seed", 0, "Random seed for the model-based selectors (overrides SEED)")
	rankCmd.Flags().Duration("timeout", 0, "Per-selector time budget, 0 for none (overrides SELECTOR_TIMEOUT)")
	rankCmd.Flags().String("output", "", "Report directory (overrides OUTPUT_PATH)")
	rankCmd.Flags().String("metrics-file", "", "Prometheus textfile to write (overrides METRICS_FILE)")
	rankCmd.Flags().Bool("no-store", false, "Do not record the run in the history store")
}

func applyRankFlags(cmd *cobra.Command, s *cfg.Settings) error {
	flags := cmd.Flags()
	if flags.Changed("data") {
		s.DataPath, _ = flags.GetString("data")
	}
	if flags.Changed("recode") {
		s.RecodePath, _ = flags.GetString("recode")
	}
	if flags.Changed("features") {
		s.NumFeatures, _ = flags.GetInt("features")
	}
	if flags.Changed("selectors") {
		s.Selectors, _ = flags.GetStringSlice("selectors")
	}
	if flags.Changed("seed") {
		s.Seed, _ = flags.GetInt64("seed")
	}
	if flags.Changed("timeout") {
		s.SelectorTimeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("output") {
		s.OutputPath, _ = flags.GetString("output")
	}
	if flags.Changed("metrics-file") {
		s.MetricsFile, _ = flags.GetString("metrics-file")
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func runRank(ctx context.Context, cmd *cobra.Command, settings cfg.Settings, persist bool) error {
	registry := prometheus.NewRegistry()
	m := metrics.NewWrapper(metrics.NewWithRegistry(registry))
	defer func() {
		if settings.MetricsFile == "" {
			return
		}
		if err := metrics.WriteTextfile(settings.MetricsFile, registry); err != nil {
			log.Error().Err(err).Msg("Failed to write metrics")
		}
	}()

	fm, err := buildMatrix(settings)
	if err != nil {
		m.RecodeErrors().Inc()
		return err
	}
	m.ObserveDataset(fm.NumSamples(), fm.NumFeatures())

	selectors, err := selection.Build(settings.Selectors, settings.SelectionOptions())
	if err != nil {
		return err
	}

	agg := consensus.NewAggregator(settings.SelectorTimeout, settings.MaxConcurrent)
	agg.SetMetrics(m)

	log.Info().
		Int("rows", fm.NumSamples()).
		Int("features", fm.NumFeatures()).
		Int("k", settings.NumFeatures).
		Strs("selectors", settings.Selectors).
		Msg("Starting consensus ranking")

	ranking, err := agg.Aggregate(ctx, fm, selectors, settings.NumFeatures)
	if err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}
	if len(ranking.Entries) > 0 {
		m.TopVotes().Set(float64(ranking.Entries[0].Votes))
	}
	for _, e := range ranking.Entries {
		m.FeatureVotesSet(e.Feature, e.Votes)
	}

	if persist && settings.StorePath != "" {
		store, err := storage.New(settings.StorePath)
		if err != nil {
			return fmt.Errorf("open run store: %w", err)
		}
		defer store.Close()
		if err := store.StoreRun(ranking); err != nil {
			return fmt.Errorf("store run: %w", err)
		}
	}

	reporter := report.NewReporter(ranking, settings.OutputPath)
	if settings.OutputPath != "" {
		if err := reporter.GenerateReport(); err != nil {
			log.Error().Err(err).Msg("Failed to generate reports")
		}
	}
	if err := reporter.PrintSummary(cmd.OutOrStdout(), settings.NumFeatures); err != nil {
		return err
	}

	log.Info().
		Str("run_id", ranking.RunID).
		Str("output", settings.OutputPath).
		Float64("failure_rate", metrics.GetFailureRate(registry)).
		Msg("Ranking completed successfully")
	return nil
}

func buildMatrix(settings cfg.Settings) (*dataset.FeatureMatrix, error) {
	rc, err := dataset.LoadRecodeConfig(settings.RecodePath)
	if err != nil {
		return nil, err
	}
	recoder, err := dataset.NewRecoder(rc)
	if err != nil {
		return nil, err
	}
	frame, err := dataset.LoadCSV(settings.DataPath)
	if err != nil {
		return nil, err
	}
	return recoder.Apply(frame)
}
