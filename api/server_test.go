package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/seenimoa/newspulse/internal/config"
	"github.com/seenimoa/newspulse/internal/scheduler"
	"github.com/seenimoa/newspulse/internal/storage"
	"github.com/seenimoa/newspulse/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Test Helpers
// ════════════════════════════════════════════════════════════════════

var now = time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)

type fakeScheduler struct {
	ack    scheduler.Ack
	err    error
	calls  int
	status scheduler.Status
}

func (f *fakeScheduler) Trigger(ctx context.Context) (scheduler.Ack, error) {
	f.calls++
	return f.ack, f.err
}

func (f *fakeScheduler) Status() scheduler.Status { return f.status }

func testConfig() *config.Config {
	return &config.Config{
		Feeds: []models.FeedConfig{{URL: "https://feed/btc", Ticker: "BTC"}},
		Storage: config.StorageConfig{
			Driver: storage.DriverPostgres,
			DSN:    "postgres://user:secret@db:5432/news",
		},
		Query: config.QueryConfig{Window: "24h", CacheTTL: time.Minute, DefaultLimit: 2},
	}
}

func testServer(t *testing.T, sched *fakeScheduler) (*Server, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	if sched == nil {
		sched = &fakeScheduler{status: scheduler.Status{State: "idle"}}
	}
	srv := NewServer(testConfig(), Options{Scheduler: sched, Reader: store, Version: "test"})
	srv.now = func() time.Time { return now }
	return srv, store
}

func seed(t *testing.T, store *storage.Memory, arts ...models.Article) {
	t.Helper()
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.InsertBatch(ctx, arts); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func do(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) APIResponse {
	t.Helper()
	var raw struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if data != nil && len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, data); err != nil {
			t.Fatalf("failed to decode data: %v", err)
		}
	}
	return APIResponse{Success: raw.Success, Error: raw.Error}
}

func art(url, ticker string, score float64, at time.Time) models.Article {
	return models.Article{Title: url, Source: "https://feed", URL: url, PublishedAt: at, SentimentScore: score, Ticker: ticker}
}

// ════════════════════════════════════════════════════════════════════
// Handlers
// ════════════════════════════════════════════════════════════════════

func TestHandleHealth(t *testing.T) {
	srv, _ := testServer(t, nil)
	for _, path := range []string{"/health", "/api/v1/health"} {
		rec := do(t, srv, http.MethodGet, path)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", path, rec.Code)
		}
		var data map[string]interface{}
		resp := decodeResponse(t, rec, &data)
		if !resp.Success || data["status"] != "ok" || data["version"] != "test" || data["scheduler"] != "idle" {
			t.Errorf("%s: data = %v", path, data)
		}
	}
}

func TestHandleSentiment(t *testing.T) {
	srv, store := testServer(t, nil)
	seed(t, store,
		art("https://x/1", "BTC", 0.6, now.Add(-time.Hour)),
		art("https://x/2", "BTC", 0.2, now.Add(-2*time.Hour)),
		art("https://x/3", "BTC", -1, now.Add(-72*time.Hour)),
		art("https://x/4", "ETH", -0.9, now.Add(-time.Hour)),
	)

	rec := do(t, srv, http.MethodGet, "/api/v1/sentiment/btc")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Cache") != "MISS" {
		t.Errorf("first request X-Cache = %q", rec.Header().Get("X-Cache"))
	}
	var ts models.TickerSentiment
	decodeResponse(t, rec, &ts)
	if ts.Ticker != "BTC" || ts.ArticleCount != 2 || ts.Window != "24h" {
		t.Errorf("sentiment = %+v", ts)
	}
	if ts.AverageSentiment < 0.3999 || ts.AverageSentiment > 0.4001 || ts.Label != "Bullish" {
		t.Errorf("average = %v label = %q, want 0.4 Bullish", ts.AverageSentiment, ts.Label)
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/sentiment/BTC")
	if rec.Header().Get("X-Cache") != "HIT" {
		t.Errorf("second request X-Cache = %q", rec.Header().Get("X-Cache"))
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/sentiment/BTC?window=7d")
	decodeResponse(t, rec, &ts)
	if ts.ArticleCount != 3 || ts.Window != "7d" {
		t.Errorf("7d sentiment = %+v", ts)
	}

	srv.PassCompleted(&models.PassReport{ID: "p"})
	rec = do(t, srv, http.MethodGet, "/api/v1/sentiment/BTC")
	if rec.Header().Get("X-Cache") != "MISS" {
		t.Error("PassCompleted should flush the cache")
	}
}

func TestHandleSentimentNoRows(t *testing.T) {
	srv, _ := testServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/api/v1/sentiment/DOGE")
	var ts models.TickerSentiment
	decodeResponse(t, rec, &ts)
	if rec.Code != http.StatusOK || ts.AverageSentiment != 0 || ts.ArticleCount != 0 || ts.Label != "Neutral" {
		t.Errorf("empty sentiment = %d %+v", rec.Code, ts)
	}
}

func TestHandleSentimentBadInput(t *testing.T) {
	srv, _ := testServer(t, nil)
	tests := []struct {
		name, path string
	}{
		{"bad ticker", "/api/v1/sentiment/b%21d"},
		{"bad window", "/api/v1/sentiment/BTC?window=soon"},
		{"negative window", "/api/v1/sentiment/BTC?window=-1h"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, tt.path)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if resp := decodeResponse(t, rec, nil); resp.Success || resp.Error == "" {
				t.Errorf("resp = %+v", resp)
			}
		})
	}
}

func TestHandleArticles(t *testing.T) {
	srv, store := testServer(t, nil)
	seed(t, store,
		art("https://x/old", "BTC", 0, now.Add(-3*time.Hour)),
		art("https://x/new", "BTC", 0, now),
		art("https://x/mid", "BTC", 0, now.Add(-time.Hour)),
	)

	rec := do(t, srv, http.MethodGet, "/api/v1/articles/BTC")
	var got ArticlesResponse
	decodeResponse(t, rec, &got)
	if got.Count != 2 || got.Articles[0].URL != "https://x/new" || got.Articles[1].URL != "https://x/mid" {
		t.Errorf("default limit result = %+v", got)
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/articles/BTC?limit=500")
	decodeResponse(t, rec, &got)
	if got.Count != 3 {
		t.Errorf("count = %d, want 3", got.Count)
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/articles/ETH")
	decodeResponse(t, rec, &got)
	if got.Count != 0 || got.Articles == nil {
		t.Errorf("empty result = %+v, want empty list", got)
	}

	for _, bad := range []string{"0", "-3", "ten"} {
		if rec := do(t, srv, http.MethodGet, "/api/v1/articles/BTC?limit="+bad); rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: status = %d, want 400", bad, rec.Code)
		}
	}
}

func TestHandleIngest(t *testing.T) {
	report := &models.PassReport{ID: "pass-1", Origin: models.OriginOnDemand}
	tests := []struct {
		name        string
		ack         scheduler.Ack
		err         error
		wantCode    int
		wantStatus  string
		wantMessage string
	}{
		{"started", scheduler.Ack{Status: scheduler.AckStarted}, nil, http.StatusAccepted, "started", "Ingestion started in background"},
		{"queued", scheduler.Ack{Status: scheduler.AckQueued}, nil, http.StatusAccepted, "queued", "Ingestion queued behind the running pass"},
		{"completed", scheduler.Ack{Status: scheduler.AckCompleted, Report: report}, nil, http.StatusOK, "completed", "Ingestion completed"},
		{"not running", scheduler.Ack{}, scheduler.ErrNotRunning, http.StatusServiceUnavailable, "", ""},
		{"timed out", scheduler.Ack{}, context.DeadlineExceeded, http.StatusGatewayTimeout, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched := &fakeScheduler{ack: tt.ack, err: tt.err}
			srv, _ := testServer(t, sched)

			rec := do(t, srv, http.MethodPost, "/api/v1/ingest")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if sched.calls != 1 {
				t.Errorf("Trigger calls = %d", sched.calls)
			}
			var got IngestResponse
			resp := decodeResponse(t, rec, &got)
			if tt.err != nil {
				if resp.Success {
					t.Error("error response should not succeed")
				}
				return
			}
			if got.Status != tt.wantStatus || got.Message != tt.wantMessage {
				t.Errorf("got %+v", got)
			}
			if (tt.ack.Report != nil) != (got.Report != nil) {
				t.Errorf("report presence mismatch: %+v", got.Report)
			}
		})
	}
}

func TestHandleStatusAndFeeds(t *testing.T) {
	sched := &fakeScheduler{status: scheduler.Status{State: "running", Mode: scheduler.ModeSync, Passes: 3}}
	srv, _ := testServer(t, sched)

	var st scheduler.Status
	decodeResponse(t, do(t, srv, http.MethodGet, "/api/v1/status"), &st)
	if st.State != "running" || st.Passes != 3 || st.Mode != scheduler.ModeSync {
		t.Errorf("status = %+v", st)
	}

	var feeds []models.FeedConfig
	decodeResponse(t, do(t, srv, http.MethodGet, "/api/v1/feeds"), &feeds)
	if len(feeds) != 1 || feeds[0].Ticker != "BTC" {
		t.Errorf("feeds = %+v", feeds)
	}
}

func TestHandleGetConfigMasksSecrets(t *testing.T) {
	srv, _ := testServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/api/v1/config")
	body := rec.Body.String()
	if strings.Contains(body, ":secret@") {
		t.Errorf("config response leaks the DSN password: %s", body)
	}

	var got ConfigResponse
	decodeResponse(t, rec, &got)
	if got.Config.Storage.DSN != "postgres://user:xxx@db:5432/news" {
		t.Errorf("masked DSN = %q", got.Config.Storage.DSN)
	}
	if len(got.Secrets) == 0 {
		t.Error("config response should report secret status")
	}
	if srv.cfg.Storage.DSN != "postgres://user:secret@db:5432/news" {
		t.Error("redaction must not modify the running config")
	}
}

// ════════════════════════════════════════════════════════════════════
// WebSocket
// ════════════════════════════════════════════════════════════════════

func TestWebSocketPassCompleted(t *testing.T) {
	sched := &fakeScheduler{status: scheduler.Status{State: "idle"}}
	srv, _ := testServer(t, sched)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Hub().Run(ctx)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Hub().ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	srv.PassCompleted(&models.PassReport{ID: "pass-9", Origin: models.OriginScheduled})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type string            `json:"type"`
		Data models.PassReport `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != MsgPassCompleted || msg.Data.ID != "pass-9" {
		t.Errorf("message = %+v", msg)
	}

	for _, tc := range []struct{ send, want string }{
		{MsgPing, MsgPong},
		{MsgStatus, MsgStatus},
		{"subscribe", MsgError},
	} {
		if err := conn.WriteJSON(WSMessage{Type: tc.send}); err != nil {
			t.Fatal(err)
		}
		var reply WSMessage
		if err := conn.ReadJSON(&reply); err != nil {
			t.Fatalf("read reply to %s: %v", tc.send, err)
		}
		if reply.Type != tc.want {
			t.Errorf("reply to %s = %q, want %q", tc.send, reply.Type, tc.want)
		}
	}
}

func TestWSHubStopClosesClients(t *testing.T) {
	hub := NewWSHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	c := &WSClient{hub: hub, send: make(chan WSMessage, 1)}
	hub.Register(c)
	cancel()
	<-stopped

	if _, ok := <-c.send; ok {
		t.Error("client channel should be closed when the hub stops")
	}

	late := &WSClient{hub: hub, send: make(chan WSMessage, 1)}
	hub.Register(late)
	if _, ok := <-late.send; ok {
		t.Error("registering with a stopped hub should close the client")
	}
	hub.Unregister(late) // must not block
}
