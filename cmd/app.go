package main

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"githubactivity/activity"
	"githubactivity/cache"
	"githubactivity/config"
	"githubactivity/db"
	"githubactivity/experience"
	"githubactivity/github"
	"githubactivity/logger"
	"githubactivity/metrics"
	"githubactivity/service"
	"githubactivity/techstack"
	"githubactivity/tools"
)

// app is the wired process: one client, tracker and cache shared by every
// tool invocation.
type app struct {
	cfg      *config.Config
	metrics  *metrics.Manager
	service  *service.Service
	registry *tools.Registry
	archive  *db.DB
}

func loadConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if err := cfg.Load(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func openArchive(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	archive, err := db.New(ctx, db.Options{
		DSN:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if err := archive.Migrate(ctx); err != nil {
		archive.Close()
		return nil, err
	}
	return archive, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	baseURL, err := url.Parse(cfg.APIURL)
	if err != nil {
		return nil, fmt.Errorf("%w: GITHUB_API_URL: %v", config.ErrInvalidConfig, err)
	}

	m := metrics.Default()

	client := github.NewClient(cfg.GitHubToken,
		github.WithBaseURL(baseURL),
		github.WithTimeout(cfg.RequestTimeout),
		github.WithRetries(cfg.RateLimitRetries),
		github.WithBackoff(cfg.BackoffBase, cfg.BackoffMax),
		github.WithMaxRateLimitWait(cfg.RateLimitMaxWait),
		github.WithTracker(github.NewRateLimitTracker()),
		github.WithRecorder(m),
	)
	responses := cache.New[*github.RawResponse](cache.Options{
		MaxEntries: cfg.CacheMaxEntries,
		Recorder:   m,
	})
	fetcher := github.NewCachingFetcher(client, responses, cfg.CacheTTL)

	agg := activity.New(fetcher, activity.Options{
		PageSize:          cfg.MaxEventsPerRequest,
		Concurrency:       cfg.FanoutConcurrency,
		MaxRepositories:   cfg.MaxRepositories,
		MaxCommitsPerRepo: cfg.MaxCommitsPerRepo,
		MaxCommitDetails:  cfg.MaxCommitDetails,
		MaxPages:          cfg.MaxPages,
		IncludeForks:      cfg.IncludeForks,
		Recorder:          m,
	})

	var analyzerOpts []techstack.Option
	if cfg.LanguageDetector == config.DetectorEnry {
		analyzerOpts = append(analyzerOpts, techstack.WithResolver(techstack.EnryResolver{}))
	}
	analyzer := techstack.New(analyzerOpts...)
	synth := experience.New(analyzer)

	a := &app{cfg: cfg, metrics: m}
	svcOpts := []service.Option{service.WithMetrics(m)}
	if cfg.DatabaseURL != "" {
		archive, err := openArchive(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.archive = archive
		svcOpts = append(svcOpts, service.WithArchive(archive))
	}

	a.service = service.NewService(agg, analyzer, synth, svcOpts...)
	a.registry = tools.NewRegistry(a.service)

	logger.Info("Service initialized successfully",
		zap.String("api_url", cfg.APIURL),
		zap.String("language_detector", cfg.LanguageDetector),
		zap.Int("fanout_concurrency", cfg.FanoutConcurrency),
		zap.Bool("archive", a.archive != nil))
	return a, nil
}

func (a *app) Close() error {
	if a.archive == nil {
		return nil
	}
	if err := a.archive.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
