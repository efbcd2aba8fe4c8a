package cmd

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rxlens/backend/internal/infrastructure/fda"
	"github.com/rxlens/backend/internal/usecase"
)

var (
	matchConcurrency int
	matchAttempts    int
	matchLimit       int
)

var matchCmd = &cobra.Command{
	Use:   "match <ndc-file>",
	Short: "Match an FDA NDC directory file against RxNorm",
	Long: `Parses a local FDA NDC directory product file and runs every record
through the matching pipeline, persisting the results. The batch report,
including the NDCs skipped after transient failures, is printed as JSON so a
later run can retry just that subset.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		records, err := fda.NewLoader().LoadFile(args[0])
		if err != nil {
			return err
		}
		if matchLimit > 0 && matchLimit < len(records) {
			records = records[:matchLimit]
		}
		a.log.Info("loaded ndc directory",
			zap.String("file", args[0]),
			zap.Int("records", len(records)))

		// SIGINT stops dispatching after in-flight records complete.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg := usecase.PipelineConfig{
			Concurrency: matchConcurrency,
			MaxAttempts: matchAttempts,
		}
		if cfg.Concurrency <= 0 {
			cfg.Concurrency = a.cfg.Matching.Concurrency
		}
		if cfg.MaxAttempts <= 0 {
			cfg.MaxAttempts = a.cfg.Matching.MaxAttempts
		}
		cfg.FlushSize = a.cfg.Matching.FlushSize

		report, err := a.matcher.RunBatch(ctx, records, cfg)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	matchCmd.Flags().IntVar(&matchConcurrency, "concurrency", 0, "worker pool width (default from config)")
	matchCmd.Flags().IntVar(&matchAttempts, "max-attempts", 0, "attempt ceiling per record (default from config)")
	matchCmd.Flags().IntVar(&matchLimit, "limit", 0, "only match the first N records (0 = all)")
	RootCmd.AddCommand(matchCmd)
}
