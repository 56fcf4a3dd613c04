// Package storage persists articles and answers the read-side queries.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/seenimoa/newspulse/pkg/models"
)

var (
	// ErrDuplicate reports that an article URL is already stored.
	ErrDuplicate = errors.New("storage: duplicate article url")
	// ErrTxDone reports use of a transaction after Commit or Rollback.
	ErrTxDone = errors.New("storage: transaction already committed or rolled back")
	// ErrInvalidLimit reports a negative RecentArticles limit.
	ErrInvalidLimit = errors.New("storage: limit must not be negative")
)

// Tx is a unit of work owned by exactly one feed pipeline.
type Tx interface {
	// Exists reports whether an article with url has been committed.
	Exists(ctx context.Context, url string) (bool, error)
	// InsertBatch stages articles for commit and assigns their IDs.
	InsertBatch(ctx context.Context, articles []models.Article) error
	Commit() error
	Rollback() error
}

// Reader answers the query API.
type Reader interface {
	// AverageSentiment returns the mean score and row count for ticker
	// over articles published at or after since. No rows yields 0, 0.
	AverageSentiment(ctx context.Context, ticker string, since time.Time) (float64, int, error)
	// RecentArticles returns up to limit articles for ticker, newest first.
	// A negative limit fails with ErrInvalidLimit.
	RecentArticles(ctx context.Context, ticker string, limit int) ([]models.Article, error)
}

// Store is the full storage boundary.
type Store interface {
	Reader
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// Driver names.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Options configures Open.
type Options struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	ConnMaxLife  time.Duration
	Migrate      bool // create the schema on open (postgres only)
}

// Open returns the store selected by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverPostgres, "":
		pg, err := OpenPostgres(ctx, opts)
		if err != nil {
			return nil, err
		}
		if opts.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				pg.Close()
				return nil, err
			}
		}
		return pg, nil
	}
	return nil, fmt.Errorf("storage: unknown driver %q", opts.Driver)
}
