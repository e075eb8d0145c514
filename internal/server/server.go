// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gainslog/internal/logstate"
	"gainslog/internal/models"
	"gainslog/internal/reconcile"
)

type Config struct {
	Host string
	Port int
}

// ServerInfo identifies this server in tool listings and health checks.
var ServerInfo = protocol.Implementation{
	Name:    "gainslog",
	Version: "1.0.0",
}

type GainsLogServer struct {
	httpServer *http.Server
	router     chi.Router
	flow       *reconcile.Flow
	store      *logstate.Store
	gatherer   prometheus.Gatherer
	targets    models.DailyTargets
	logger     *slog.Logger
	now        func() time.Time
	config     *Config
}

// Option configures a GainsLogServer.
type Option func(*GainsLogServer)

func WithLogger(logger *slog.Logger) Option {
	return func(s *GainsLogServer) {
		s.logger = logger
	}
}

// WithGatherer exposes g on /metrics. Without it /metrics is not routed.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *GainsLogServer) {
		s.gatherer = g
	}
}

// WithTargets sets the daily goals reported by daily_totals.
func WithTargets(t models.DailyTargets) Option {
	return func(s *GainsLogServer) {
		s.targets = t
	}
}

// WithClock overrides time.Now when defaulting dates.
func WithClock(now func() time.Time) Option {
	return func(s *GainsLogServer) {
		s.now = now
	}
}

func NewGainsLogServer(cfg *Config, flow *reconcile.Flow, store *logstate.Store, opts ...Option) *GainsLogServer {
	s := &GainsLogServer{
		flow:   flow,
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
		config: cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *GainsLogServer) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Post("/mcp", s.handleToolCall)
	r.Options("/mcp", s.handleToolCall)

	r.Route("/api", func(r chi.Router) {
		r.Get("/entries", s.handleListEntries)
		r.Get("/totals", s.handleTotals)
	})

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.router = r
}

// Handler returns the routed HTTP handler.
func (s *GainsLogServer) Handler() http.Handler {
	return s.router
}

func (s *GainsLogServer) Start(ctx context.Context) error {
	s.logger.Info("Starting gainslog server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *GainsLogServer) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// handleToolCall decodes an MCP tool call and routes it to its handler.
func (s *GainsLogServer) handleToolCall(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var request protocol.CallToolRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err), nil)
		return
	}

	handler, ok := s.tools()[request.Name]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Unknown tool: %s", request.Name), nil)
		return
	}

	result, err := handler(r.Context(), &request)
	if err != nil {
		s.logger.Warn("Tool call failed", "tool", request.Name, "error", err)
		s.writeToolError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *GainsLogServer) writeToolError(w http.ResponseWriter, err error) {
	var verr *reconcile.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "Invalid input", verr.Errors)
	case errors.Is(err, errInvalidParams):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, reconcile.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, reconcile.ErrEstimationInFlight):
		writeError(w, http.StatusConflict, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
	}
}

func (s *GainsLogServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"name":    ServerInfo.Name,
		"version": ServerInfo.Version,
		"entries": len(s.store.Entries()),
	})
}

func (s *GainsLogServer) handleListEntries(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeJSON(w, http.StatusOK, s.store.Entries())
		return
	}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		writeError(w, http.StatusBadRequest, "Date must be in YYYY-MM-DD format", nil)
		return
	}
	writeJSON(w, http.StatusOK, s.store.EntriesForDate(date))
}

func (s *GainsLogServer) handleTotals(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = s.today()
	} else if _, err := time.Parse(models.DateLayout, date); err != nil {
		writeError(w, http.StatusBadRequest, "Date must be in YYYY-MM-DD format", nil)
		return
	}
	writeJSON(w, http.StatusOK, models.NewDailyProgress(s.store.DailyTotals(date), s.targets))
}

func (s *GainsLogServer) today() string {
	return s.now().Format(models.DateLayout)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, details []string) {
	body := map[string]interface{}{"error": message}
	if len(details) > 0 {
		body["details"] = details
	}
	writeJSON(w, status, body)
}
