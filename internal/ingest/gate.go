// Package ingest runs the per-feed pipeline (fetch, parse, dedup, score,
// persist) and fans it out across every configured feed.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/seenimoa/newspulse/internal/feed"
	"github.com/seenimoa/newspulse/internal/sentiment"
	"github.com/seenimoa/newspulse/internal/storage"
	"github.com/seenimoa/newspulse/pkg/models"
)

// Beginner opens storage transactions.
type Beginner interface {
	Begin(ctx context.Context) (storage.Tx, error)
}

// Gate deduplicates parsed items, scores the new ones and commits them in a
// single transaction per feed.
type Gate struct {
	store  Beginner
	scorer sentiment.Scorer
	log    logrus.FieldLogger
}

// NewGate creates a Gate. scorer must be safe for concurrent use.
func NewGate(store Beginner, scorer sentiment.Scorer, log logrus.FieldLogger) *Gate {
	return &Gate{store: store, scorer: scorer, log: log}
}

// Process stores every new item of doc under fc.Ticker.
// Items without a link, links repeated within doc and links already stored
// are not written. Any storage error rolls back the whole batch and returns a
// *feed.FeedError of kind feed.ErrPersist; on that path Inserted is zero.
func (g *Gate) Process(ctx context.Context, fc models.FeedConfig, doc *feed.Document) (models.FeedResult, error) {
	res := models.FeedResult{Feed: fc, Items: doc.Len()}
	log := g.log.WithFields(logrus.Fields{"feed": fc.URL, "ticker": fc.Ticker})

	tx, err := g.store.Begin(ctx)
	if err != nil {
		return res, feed.PersistError(fc.URL, err)
	}
	// Rollback after a successful Commit is a no-op.
	defer tx.Rollback()

	var (
		batch []models.Article
		seen  = make(map[string]struct{}, doc.Len())
	)
	for item := range doc.Items() {
		if item.Outcome == feed.Skipped {
			res.Skipped++
			continue
		}
		if _, dup := seen[item.Link]; dup {
			res.Duplicates++
			continue
		}
		seen[item.Link] = struct{}{}

		exists, err := tx.Exists(ctx, item.Link)
		if err != nil {
			return res, feed.PersistError(fc.URL, fmt.Errorf("check %s: %w", item.Link, err))
		}
		if exists {
			res.Duplicates++
			continue
		}

		score, err := safeScore(g.scorer, item.Title)
		if err != nil {
			res.ScoreFails++
			log.WithError(err).WithFields(logrus.Fields{
				"url":          item.Link,
				"data_quality": true,
			}).Warn("sentiment scoring failed, using neutral score")
			score = 0
		}
		if item.Outcome == feed.Defaulted {
			res.Defaulted++
			log.WithFields(logrus.Fields{
				"url":           item.Link,
				"default_title": item.Defaults.Has(feed.DefaultedTitle),
				"default_date":  item.Defaults.Has(feed.DefaultedDate),
				"raw_date":      item.RawDate,
			}).Debug("item stored with defaulted fields")
		}

		batch = append(batch, models.Article{
			Title:          item.Title,
			Source:         fc.URL,
			URL:            item.Link,
			PublishedAt:    item.PublishedAt,
			SentimentScore: sentiment.Clamp(score),
			Ticker:         fc.Ticker,
		})
	}

	if err := ctx.Err(); err != nil {
		return res, feed.PersistError(fc.URL, err)
	}
	if err := tx.InsertBatch(ctx, batch); err != nil {
		return res, feed.PersistError(fc.URL, err)
	}
	if err := tx.Commit(); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			log.WithError(err).Warn("concurrent insert of the same url, batch rolled back")
		}
		return res, feed.PersistError(fc.URL, fmt.Errorf("commit: %w", err))
	}

	res.Inserted = len(batch)
	return res, nil
}

// safeScore turns a scorer panic into an error so one bad headline
// cannot take down the pass.
func safeScore(s sentiment.Scorer, text string) (score float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			score, err = 0, fmt.Errorf("scorer panic: %v", r)
		}
	}()
	return s.Score(text)
}
