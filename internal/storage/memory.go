package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/seenimoa/newspulse/pkg/models"
)

// Memory is an in-process Store. Transactions stage writes privately and
// apply them all-or-nothing on Commit.
type Memory struct {
	mu       sync.RWMutex
	byURL    map[string]int // url -> index into articles
	articles []models.Article
	nextID   int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{byURL: make(map[string]int)}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &memTx{m: m, staged: make(map[string]struct{})}, nil
}

// Len returns the number of committed articles.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.articles)
}

// Get returns the committed article for url.
func (m *Memory) Get(url string) (models.Article, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byURL[url]
	if !ok {
		return models.Article{}, false
	}
	return m.articles[i], true
}

func (m *Memory) AverageSentiment(ctx context.Context, ticker string, since time.Time) (float64, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		sum   float64
		count int
	)
	for _, a := range m.articles {
		if a.Ticker == ticker && !a.PublishedAt.Before(since) {
			sum += a.SentimentScore
			count++
		}
	}
	if count == 0 {
		return 0, 0, nil
	}
	return sum / float64(count), count, nil
}

func (m *Memory) RecentArticles(ctx context.Context, ticker string, limit int) ([]models.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, ErrInvalidLimit
	}
	m.mu.RLock()
	var out []models.Article
	for _, a := range m.articles {
		if a.Ticker == ticker {
			out = append(out, a)
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b models.Article) int {
		if c := b.PublishedAt.Compare(a.PublishedAt); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memTx struct {
	m       *Memory
	pending []models.Article
	staged  map[string]struct{}
	done    bool
}

func (t *memTx) Exists(ctx context.Context, url string) (bool, error) {
	if t.done {
		return false, ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	_, ok := t.m.byURL[url]
	return ok, nil
}

func (t *memTx) InsertBatch(ctx context.Context, articles []models.Article) error {
	if t.done {
		return ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	for i := range articles {
		a := &articles[i]
		if _, dup := t.staged[a.URL]; dup {
			return fmt.Errorf("insert %s: %w", a.URL, ErrDuplicate)
		}
		if _, dup := t.m.byURL[a.URL]; dup {
			return fmt.Errorf("insert %s: %w", a.URL, ErrDuplicate)
		}
		t.m.nextID++
		a.ID = t.m.nextID
		t.staged[a.URL] = struct{}{}
		t.pending = append(t.pending, *a)
	}
	return nil
}

// Commit re-checks uniqueness under the write lock, so a URL committed by a
// concurrent transaction fails the whole batch.
func (t *memTx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true

	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	for _, a := range t.pending {
		if _, dup := t.m.byURL[a.URL]; dup {
			return fmt.Errorf("commit %s: %w", a.URL, ErrDuplicate)
		}
	}
	for _, a := range t.pending {
		t.m.byURL[a.URL] = len(t.m.articles)
		t.m.articles = append(t.m.articles, a)
	}
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.pending = nil
	return nil
}
