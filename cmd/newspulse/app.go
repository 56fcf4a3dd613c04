package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/seenimoa/newspulse/internal/config"
	"github.com/seenimoa/newspulse/internal/feed"
	"github.com/seenimoa/newspulse/internal/ingest"
	"github.com/seenimoa/newspulse/internal/scheduler"
	"github.com/seenimoa/newspulse/internal/sentiment"
	"github.com/seenimoa/newspulse/internal/storage"
)

// app holds the wired ingestion pipeline.
type app struct {
	store storage.Store
	orch  *ingest.Orchestrator
	sched *scheduler.Scheduler
}

// newApp opens storage, builds the scorer once and wires the pipeline.
func newApp(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, migrate bool) (*app, error) {
	scorer, err := newScorer(cfg)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, storageOptions(cfg, migrate))
	if err != nil {
		return nil, err
	}

	fetcher := feed.NewFetcher(feed.FetcherConfig{
		Timeout:      cfg.Fetch.Timeout,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		UserAgent:    cfg.Fetch.UserAgent,
		RatePerSec:   cfg.Fetch.RatePerSec,
		Burst:        cfg.Fetch.Burst,
	})
	gate := ingest.NewGate(store, scorer, log)
	orch := ingest.NewOrchestrator(ingest.StaticFeeds(cfg.Feeds), fetcher, gate, log,
		ingest.WithConcurrency(cfg.Ingest.Concurrency))

	sched := scheduler.New(orch, scheduler.Config{
		Interval: cfg.Scheduler.Interval,
		Mode:     scheduler.Mode(cfg.Scheduler.TriggerMode),
	}, log)

	log.WithFields(logrus.Fields{
		"feeds":   len(cfg.Feeds),
		"storage": cfg.Storage.Driver,
	}).Info("pipeline ready")

	return &app{store: store, orch: orch, sched: sched}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func newScorer(cfg *config.Config) (sentiment.Scorer, error) {
	if cfg.Sentiment.LexiconFile == "" {
		return sentiment.NewLexiconScorer(nil), nil
	}
	lex, err := sentiment.LoadLexiconFile(cfg.Sentiment.LexiconFile)
	if err != nil {
		return nil, fmt.Errorf("sentiment lexicon: %w", err)
	}
	return sentiment.NewLexiconScorer(lex), nil
}

func storageOptions(cfg *config.Config, migrate bool) storage.Options {
	return storage.Options{
		Driver:       cfg.Storage.Driver,
		DSN:          cfg.Storage.DSN,
		MaxOpenConns: cfg.Storage.MaxOpenConns,
		MaxIdleConns: cfg.Storage.MaxIdleConns,
		ConnMaxLife:  cfg.Storage.ConnMaxLife,
		Migrate:      migrate,
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
