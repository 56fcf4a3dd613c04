package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/seenimoa/newspulse/internal/config"
	"github.com/seenimoa/newspulse/internal/logger"
	"github.com/seenimoa/newspulse/internal/storage"
	"github.com/seenimoa/newspulse/pkg/models"
)

const testFeed = `<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>
<item><title>Stocks rally</title><link>https://x/1</link><pubDate>Mon, 02 Mar 2026 09:30:00 GMT</pubDate></item>
<item><title>Markets crash</title><link>https://x/2</link></item>
</channel></rss>`

func memoryConfig(feedURL string) *config.Config {
	return &config.Config{
		Feeds:     []models.FeedConfig{{URL: feedURL, Ticker: "MARKET"}},
		Scheduler: config.SchedulerConfig{Interval: time.Hour, TriggerMode: config.TriggerSync},
		Fetch:     config.FetchConfig{Timeout: time.Second},
		Storage:   config.StorageConfig{Driver: storage.DriverMemory},
	}
}

func TestNewAppRunsPass(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	ctx := context.Background()
	a, err := newApp(ctx, memoryConfig(srv.URL), logger.Discard(), false)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	report := a.orch.RunPass(ctx, models.OriginCLI)
	if report.Inserted() != 2 || report.Failed() != 0 {
		t.Fatalf("report = %+v", report.Feeds)
	}
	mem := a.store.(*storage.Memory)
	if mem.Len() != 2 {
		t.Errorf("stored %d, want 2", mem.Len())
	}

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	printReport(cmd, report)
	if !strings.Contains(buf.String(), "Inserted 2 articles, 0 feeds failed") {
		t.Errorf("printReport output:\n%s", buf.String())
	}
}

func TestNewAppSyncTrigger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := newApp(ctx, memoryConfig(srv.URL), logger.Discard(), false)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	go a.sched.Run(ctx)

	// The first scheduled pass may still be running; the trigger is served
	// by it or by the follow-up.
	deadline := time.Now().Add(2 * time.Second)
	for {
		tctx, tcancel := context.WithTimeout(ctx, 2*time.Second)
		ack, err := a.sched.Trigger(tctx)
		tcancel()
		if err == nil {
			if ack.Report == nil {
				t.Fatalf("sync ack without report: %+v", ack)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Trigger: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if n := a.store.(*storage.Memory).Len(); n != 2 {
		t.Errorf("stored %d, want 2 after repeated passes", n)
	}
}

func TestNewScorerLexiconFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lexicon.yaml")
	if err := os.WriteFile(path, []byte("bullish:\n  moonshot: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := memoryConfig("https://x")
	cfg.Sentiment.LexiconFile = path
	scorer, err := newScorer(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := scorer.Score("moonshot"); s <= 0 {
		t.Errorf("custom term score = %v, want positive", s)
	}

	cfg.Sentiment.LexiconFile = filepath.Join(dir, "missing.yaml")
	if _, err := newScorer(cfg); err == nil {
		t.Error("missing lexicon file should fail")
	}
}
