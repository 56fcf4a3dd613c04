// Package api provides the HTTP API for newspulse.
//
// It exposes the sentiment and article queries, the on-demand ingestion
// trigger, scheduler status, and a WebSocket stream of finished passes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/seenimoa/newspulse/internal/config"
	"github.com/seenimoa/newspulse/internal/infra"
	"github.com/seenimoa/newspulse/internal/logger"
	"github.com/seenimoa/newspulse/internal/scheduler"
	"github.com/seenimoa/newspulse/internal/sentiment"
	"github.com/seenimoa/newspulse/internal/storage"
	"github.com/seenimoa/newspulse/pkg/models"
	"github.com/seenimoa/newspulse/pkg/utils"
)

// maxArticlesLimit caps the limit query parameter.
const maxArticlesLimit = 100

// Scheduler is the part of *scheduler.Scheduler the API uses.
type Scheduler interface {
	Trigger(ctx context.Context) (scheduler.Ack, error)
	Status() scheduler.Status
}

// Server is the HTTP API server.
type Server struct {
	router  chi.Router
	cfg     *config.Config
	sched   Scheduler
	reader  storage.Reader
	cache   *infra.Cache[models.TickerSentiment]
	wsHub   *WSHub
	log     logrus.FieldLogger
	version string
	now     func() time.Time
}

// Options holds the server's collaborators.
type Options struct {
	Scheduler Scheduler
	Reader    storage.Reader
	Logger    logrus.FieldLogger
	Version   string
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(cfg *config.Config, opts Options) *Server {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	s := &Server{
		cfg:     cfg,
		sched:   opts.Scheduler,
		reader:  opts.Reader,
		cache:   infra.NewCache[models.TickerSentiment](cfg.Query.CacheTTL),
		wsHub:   NewWSHub(opts.Logger),
		log:     opts.Logger,
		version: opts.Version,
		now:     utils.NowUTC,
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WSHub {
	return s.wsHub
}

// PassCompleted drops cached query results and notifies WebSocket clients.
// It is registered as a scheduler OnPass hook.
func (s *Server) PassCompleted(report *models.PassReport) {
	s.cache.Flush()
	s.wsHub.Broadcast(WSMessage{Type: MsgPassCompleted, Data: report})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go s.wsHub.Run(hubCtx)
	go s.cache.RunJanitor(hubCtx, time.Minute)

	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("HTTP API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down HTTP API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	// CORS
	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		// The websocket route must not sit behind the request timeout.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/health", s.handleHealth)
			r.Get("/sentiment/{ticker}", s.handleSentiment)
			r.Get("/articles/{ticker}", s.handleArticles)
			r.Post("/ingest", s.handleIngest)
			r.Get("/status", s.handleStatus)
			r.Get("/feeds", s.handleFeeds)
			r.Get("/config", s.handleGetConfig)
		})
	})

	return r
}

// requestLogger logs one line per request through logrus.
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Debug("http request")
		})
	}
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// IngestResponse is returned by POST /api/v1/ingest.
type IngestResponse struct {
	Message string             `json:"message"`
	Status  string             `json:"status"`
	Report  *models.PassReport `json:"report,omitempty"`
}

// ArticlesResponse is returned by GET /api/v1/articles/{ticker}.
type ArticlesResponse struct {
	Ticker   string           `json:"ticker"`
	Count    int              `json:"count"`
	Articles []models.Article `json:"articles"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"status":  "ok",
		"version": s.version,
		"time":    utils.FormatUTC(s.now()),
	}
	if s.sched != nil {
		data["scheduler"] = s.sched.Status().State
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

func (s *Server) handleSentiment(w http.ResponseWriter, r *http.Request) {
	ticker, ok := tickerParam(w, r)
	if !ok {
		return
	}

	window := r.URL.Query().Get("window")
	if window == "" {
		window = s.cfg.Query.Window
	}
	d, err := utils.ParseWindow(window)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid window: "+err.Error())
		return
	}

	result, hit, err := s.cache.GetOrLoad(ticker+"|"+window, func() (models.TickerSentiment, error) {
		now := s.now()
		avg, n, err := s.reader.AverageSentiment(r.Context(), ticker, now.Add(-d))
		if err != nil {
			return models.TickerSentiment{}, err
		}
		return models.TickerSentiment{
			Ticker:           ticker,
			AverageSentiment: avg,
			Label:            sentiment.Label(avg),
			ArticleCount:     n,
			Window:           window,
			CalculatedAt:     now,
		}, nil
	})
	if err != nil {
		s.log.WithError(err).WithField("ticker", ticker).Error("sentiment query failed")
		writeError(w, http.StatusInternalServerError, "sentiment query failed")
		return
	}

	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: result})
}

func (s *Server) handleArticles(w http.ResponseWriter, r *http.Request) {
	ticker, ok := tickerParam(w, r)
	if !ok {
		return
	}

	limit := s.cfg.Query.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit <= 0 {
		limit = 10
	}
	limit = min(limit, maxArticlesLimit)

	articles, err := s.reader.RecentArticles(r.Context(), ticker, limit)
	if err != nil {
		s.log.WithError(err).WithField("ticker", ticker).Error("articles query failed")
		writeError(w, http.StatusInternalServerError, "articles query failed")
		return
	}
	if articles == nil {
		articles = []models.Article{}
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    ArticlesResponse{Ticker: ticker, Count: len(articles), Articles: articles},
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	ack, err := s.sched.Trigger(r.Context())
	switch {
	case errors.Is(err, scheduler.ErrNotRunning), errors.Is(err, scheduler.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, "ingestion did not finish before the request ended")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := IngestResponse{Status: string(ack.Status), Report: ack.Report}
	status := http.StatusAccepted
	switch ack.Status {
	case scheduler.AckStarted:
		resp.Message = "Ingestion started in background"
	case scheduler.AckQueued:
		resp.Message = "Ingestion queued behind the running pass"
	case scheduler.AckCompleted:
		resp.Message = "Ingestion completed"
		status = http.StatusOK
	}
	writeJSON(w, status, APIResponse{Success: true, Data: resp})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.sched.Status()})
}

func (s *Server) handleFeeds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.cfg.Feeds})
}

// tickerParam reads and validates the {ticker} URL parameter.
func tickerParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	ticker := utils.NormalizeTicker(chi.URLParam(r, "ticker"))
	if !utils.ValidTicker(ticker) {
		writeError(w, http.StatusBadRequest, "invalid ticker")
		return "", false
	}
	return ticker, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}
