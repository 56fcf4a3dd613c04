package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/seenimoa/newspulse/pkg/models"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = pq.ErrorCode("23505")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS articles (
		id              BIGSERIAL PRIMARY KEY,
		title           TEXT NOT NULL,
		source          TEXT NOT NULL,
		url             TEXT NOT NULL UNIQUE,
		published_at    TIMESTAMPTZ NOT NULL,
		sentiment_score DOUBLE PRECISION NOT NULL CHECK (sentiment_score BETWEEN -1 AND 1),
		ticker          TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_ticker_published
		ON articles (ticker, published_at DESC)`,
}

// Postgres is a Store backed by PostgreSQL through lib/pq.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects to opts.DSN and verifies the connection.
func OpenPostgres(ctx context.Context, opts Options) (*Postgres, error) {
	if opts.DSN == "" {
		return nil, errors.New("storage: postgres dsn is empty")
	}
	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLife > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLife)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the articles table and its index if they are missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, q := range schema {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

func (p *Postgres) AverageSentiment(ctx context.Context, ticker string, since time.Time) (float64, int, error) {
	var (
		avg   float64
		count int
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(sentiment_score), 0), COUNT(*)
		FROM articles
		WHERE ticker = $1 AND published_at >= $2
	`, ticker, since.UTC()).Scan(&avg, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("average sentiment: %w", err)
	}
	return avg, count, nil
}

func (p *Postgres) RecentArticles(ctx context.Context, ticker string, limit int) ([]models.Article, error) {
	if limit < 0 {
		return nil, ErrInvalidLimit
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, source, url, published_at, sentiment_score, ticker
		FROM articles
		WHERE ticker = $1
		ORDER BY published_at DESC, id DESC
		LIMIT $2
	`, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("recent articles: %w", err)
	}
	defer rows.Close()

	articles := make([]models.Article, 0, limit)
	for rows.Next() {
		var a models.Article
		if err := rows.Scan(&a.ID, &a.Title, &a.Source, &a.URL, &a.PublishedAt, &a.SentimentScore, &a.Ticker); err != nil {
			return nil, err
		}
		a.PublishedAt = a.PublishedAt.UTC()
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return articles, nil
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) Exists(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM articles WHERE url = $1)`, url).Scan(&exists)
	if err != nil {
		return false, translate(err)
	}
	return exists, nil
}

// InsertBatch uses a plain INSERT, so a URL committed concurrently by another
// pipeline fails the batch instead of being silently dropped.
func (t *pgTx) InsertBatch(ctx context.Context, articles []models.Article) error {
	if len(articles) == 0 {
		return nil
	}
	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO articles (title, source, url, published_at, sentiment_score, ticker)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`)
	if err != nil {
		return translate(err)
	}
	defer stmt.Close()

	for i := range articles {
		a := &articles[i]
		err := stmt.QueryRowContext(ctx, a.Title, a.Source, a.URL, a.PublishedAt.UTC(), a.SentimentScore, a.Ticker).Scan(&a.ID)
		if err != nil {
			return fmt.Errorf("insert %s: %w", a.URL, translate(err))
		}
	}
	return nil
}

func (t *pgTx) Commit() error   { return translate(t.tx.Commit()) }
func (t *pgTx) Rollback() error { return translate(t.tx.Rollback()) }

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrTxDone) {
		return ErrTxDone
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Detail)
	}
	return err
}
