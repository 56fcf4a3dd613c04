package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/seenimoa/newspulse/pkg/models"
)

func TestTranslate(t *testing.T) {
	if translate(nil) != nil {
		t.Error("translate(nil) should be nil")
	}
	if err := translate(&pq.Error{Code: "23505", Detail: "Key (url)=(x) already exists."}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("unique violation = %v, want ErrDuplicate", err)
	}
	if err := translate(fmt.Errorf("wrapped: %w", sql.ErrTxDone)); !errors.Is(err, ErrTxDone) {
		t.Errorf("tx done = %v, want ErrTxDone", err)
	}
	other := &pq.Error{Code: "42P01"}
	if err := translate(other); err != other {
		t.Errorf("other pq errors should pass through, got %v", err)
	}
}

func TestOpenPostgresEmptyDSN(t *testing.T) {
	if _, err := OpenPostgres(context.Background(), Options{}); err == nil {
		t.Error("empty DSN should fail")
	}
}

func TestPostgresRecentArticlesNegativeLimit(t *testing.T) {
	p := &Postgres{}
	if _, err := p.RecentArticles(context.Background(), "BTC", -1); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("limit -1 err = %v, want ErrInvalidLimit", err)
	}
}

// TestPostgresIntegration runs against a live database when NEWSPULSE_TEST_DSN is set.
func TestPostgresIntegration(t *testing.T) {
	dsn := os.Getenv("NEWSPULSE_TEST_DSN")
	if dsn == "" {
		t.Skip("NEWSPULSE_TEST_DSN not set")
	}
	ctx := context.Background()

	s, err := Open(ctx, Options{Driver: DriverPostgres, DSN: dsn, Migrate: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	// Unique ticker and URLs keep reruns independent.
	ticker := "T" + uuid.NewString()[:8]
	url := func(n int) string { return fmt.Sprintf("https://test/%s/%d", ticker, n) }
	now := time.Now().UTC().Truncate(time.Microsecond)

	commit(t, s,
		article(url(1), ticker, 0.6, now),
		article(url(2), ticker, -0.2, now.Add(-time.Hour)),
	)

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := tx.Exists(ctx, url(1)); err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
	err = tx.InsertBatch(ctx, []models.Article{article(url(3), ticker, 0, now), article(url(1), "OTHER", 0, now)})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate insert = %v, want ErrDuplicate", err)
	}
	tx.Rollback()

	avg, n, err := s.AverageSentiment(ctx, ticker, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || avg < 0.1999 || avg > 0.2001 {
		t.Errorf("AverageSentiment = %v over %d, want 0.2 over 2", avg, n)
	}

	recent, err := s.RecentArticles(ctx, ticker, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].URL != url(1) {
		t.Errorf("RecentArticles = %+v", recent)
	}
	if !recent[0].PublishedAt.Equal(now) {
		t.Errorf("PublishedAt = %v, want %v", recent[0].PublishedAt, now)
	}
}
