package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rxlens/backend/config"
	"github.com/rxlens/backend/internal/infrastructure/cache"
	"github.com/rxlens/backend/internal/infrastructure/rxnorm"
	"github.com/rxlens/backend/internal/infrastructure/store"
	"github.com/rxlens/backend/internal/logger"
	"github.com/rxlens/backend/internal/usecase"
)

// RootCmd represents the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:   "rxlens",
	Short: "FDA NDC to RxNorm matching service",
	Long: `rxlens matches FDA National Drug Code identifiers to RxNorm clinical
drug concepts, producing a normalized, confidence-scored mapping for
downstream clinical software.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		// Console format so CLI errors stay readable
		l, logErr := logger.New(logger.Config{Level: "debug", Format: "console"})
		if logErr == nil {
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// app bundles the assembled dependencies shared by all commands.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	store   *store.SqliteStore
	cache   *cache.MemoryCache
	matcher *usecase.MatcherService
}

func (a *app) close() {
	a.cache.Close()
	_ = a.store.Close()
	_ = a.log.Sync()
}

// newApp loads configuration and wires the matching core. Configuration
// errors abort before any work starts.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zap.ReplaceGlobals(log)

	matchStore, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Sync()
		return nil, err
	}

	// One limiter shared by every concurrent lookup in the process.
	limiter := rate.NewLimiter(rate.Limit(cfg.RxNorm.RequestsPerSecond), cfg.RxNorm.Burst)
	client := rxnorm.NewClient(rxnorm.Config{
		BaseURL:     cfg.RxNorm.BaseURL,
		Timeout:     cfg.RxNorm.Timeout,
		MaxAttempts: cfg.RxNorm.MaxAttempts,
	}, limiter, log)

	scorer := usecase.NewScorer(usecase.ScorerConfig{
		FuzzyThreshold:    cfg.Matching.FuzzyThreshold,
		FuzzyEditDistance: cfg.Matching.FuzzyEditDistance,
	})

	nameCache := cache.NewMemoryCache()
	pipeline := usecase.NewPipeline(client, matchStore, scorer, nameCache, log)
	matcher := usecase.NewMatcherService(pipeline, matchStore, log)

	return &app{
		cfg:     cfg,
		log:     log,
		store:   matchStore,
		cache:   nameCache,
		matcher: matcher,
	}, nil
}
