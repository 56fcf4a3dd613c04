package ingest

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/newspulse/internal/feed"
	"github.com/seenimoa/newspulse/pkg/models"
	"github.com/seenimoa/newspulse/pkg/utils"
)

// Fetcher retrieves a raw feed document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FeedSource returns the feeds to ingest. It is called once at the start of
// every pass; changes are picked up by the next pass.
type FeedSource func() []models.FeedConfig

// StaticFeeds returns a FeedSource over a private copy of feeds.
func StaticFeeds(feeds []models.FeedConfig) FeedSource {
	feeds = slices.Clone(feeds)
	return func() []models.FeedConfig { return feeds }
}

// Orchestrator runs one pipeline per configured feed and waits for all of them.
type Orchestrator struct {
	feeds   FeedSource
	fetcher Fetcher
	gate    *Gate
	log     logrus.FieldLogger
	limit   int
	now     func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency caps the number of feeds processed at once. n <= 0 means no cap.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) { o.limit = n }
}

// WithClock overrides the time source used for pass timestamps and date fallback.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(feeds FeedSource, fetcher Fetcher, gate *Gate, log logrus.FieldLogger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		feeds:   feeds,
		fetcher: fetcher,
		gate:    gate,
		log:     log,
		now:     utils.NowUTC,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunPass ingests every feed concurrently and returns once all pipelines have
// finished. A failing feed never stops its siblings; its error is recorded in
// the matching FeedResult.
func (o *Orchestrator) RunPass(ctx context.Context, origin models.PassOrigin) *models.PassReport {
	feeds := slices.Clone(o.feeds())
	report := &models.PassReport{
		ID:        uuid.NewString(),
		Origin:    origin,
		StartedAt: utils.NormalizeUTC(o.now()),
		Feeds:     make([]models.FeedResult, len(feeds)),
	}
	log := o.log.WithFields(logrus.Fields{"pass_id": report.ID, "origin": origin})
	log.WithField("feeds", len(feeds)).Info("ingestion pass started")

	g, gctx := errgroup.WithContext(ctx)
	if o.limit > 0 {
		g.SetLimit(o.limit)
	}
	for i, fc := range feeds {
		g.Go(func() error {
			report.Feeds[i] = o.runFeed(gctx, log, fc)
			return nil // non-fatal
		})
	}
	_ = g.Wait()

	report.FinishedAt = utils.NormalizeUTC(o.now())
	log.WithFields(logrus.Fields{
		"inserted": report.Inserted(),
		"failed":   report.Failed(),
		"duration": report.FinishedAt.Sub(report.StartedAt).String(),
	}).Info("ingestion pass finished")
	return report
}

func (o *Orchestrator) runFeed(ctx context.Context, log logrus.FieldLogger, fc models.FeedConfig) models.FeedResult {
	start := time.Now()
	log = log.WithFields(logrus.Fields{"feed": fc.URL, "ticker": fc.Ticker})

	res, err := o.ingest(ctx, fc)
	res.Feed = fc
	res.Duration = time.Since(start)

	if err != nil {
		res.ErrorKind = feed.KindName(err)
		res.Error = err.Error()
		log.WithError(err).WithField("error_kind", res.ErrorKind).Warn("feed ingestion failed")
		return res
	}
	log.WithFields(logrus.Fields{
		"items":      res.Items,
		"inserted":   res.Inserted,
		"duplicates": res.Duplicates,
		"skipped":    res.Skipped,
		"defaulted":  res.Defaulted,
	}).Info("feed ingested")
	return res
}

func (o *Orchestrator) ingest(ctx context.Context, fc models.FeedConfig) (models.FeedResult, error) {
	body, err := o.fetcher.Fetch(ctx, fc.URL)
	if err != nil {
		return models.FeedResult{}, err
	}
	doc, err := feed.Parse(fc.URL, body, o.now())
	if err != nil {
		return models.FeedResult{}, err
	}
	return o.gate.Process(ctx, fc, doc)
}
