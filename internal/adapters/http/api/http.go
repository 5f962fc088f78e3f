// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
)

const (
	requestTimeout = 15 * time.Second
	corsMaxAge     = 300
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SnapshotIngester
	EventDependencies
	WeightsProvider
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	snapshotsHandler *SnapshotsHandler
	eventsHandler    *EventsHandler
	weightsHandler   *WeightsHandler

	corsOrigins []string
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithCORSOrigins allows browser clients from origins. No origins disables CORS.
func WithCORSOrigins(origins ...string) ServerOption {
	return func(s *Server) { s.corsOrigins = origins }
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...ServerOption) *Server {
	s := &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(deps),
		snapshotsHandler: NewSnapshotsHandler(deps),
		eventsHandler:    NewEventsHandler(deps),
		weightsHandler:   NewWeightsHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/metrics", s.healthHandler.HandleMetrics)
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Post("/snapshots", MetricsMiddleware(s.snapshotsHandler.HandlePostSnapshot, "snapshots"))

	r.Route("/events/{eventID}", func(r chi.Router) {
		r.Put("/", MetricsMiddleware(s.eventsHandler.HandlePutEvent, "event"))
		r.Post("/outcome", MetricsMiddleware(s.eventsHandler.HandlePostOutcome, "outcome"))
		r.Get("/consensus", MetricsMiddleware(s.eventsHandler.HandleGetConsensus, "consensus"))
		r.Get("/poll", MetricsMiddleware(s.eventsHandler.HandleGetPoll, "poll"))
	})

	r.Get("/leagues/{leagueID}/weights", MetricsMiddleware(s.weightsHandler.HandleGetWeights, "weights"))
}

// Router builds a chi router with the standard middleware stack and every
// route registered.
func (s *Server) Router(ctx context.Context) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(requestTimeout))
	if len(s.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         corsMaxAge,
		}))
	}
	s.Register(ctx, r)
	return r
}

type ackResponse struct {
	Status     string `json:"status"`
	Duplicate  bool   `json:"duplicate"`
	SnapshotID string `json:"snapshot_id,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// consensusResponse flattens a consensus result; every field that has no
// value yet is null.
type consensusResponse struct {
	EventID               model.EventID    `json:"event_id"`
	Market                model.MarketType `json:"market"`
	Home                  *float64         `json:"home"`
	Draw                  *float64         `json:"draw"`
	Away                  *float64         `json:"away"`
	Tip                   *model.Outcome   `json:"tip"`
	Confidence            *float64         `json:"confidence"`
	ContributingProviders int              `json:"contributing_providers"`
	LastUpdated           *time.Time       `json:"last_updated"`
}

func newConsensusResponse(r model.ConsensusResult) consensusResponse {
	out := consensusResponse{
		EventID:               r.EventID,
		Market:                r.Market,
		ContributingProviders: r.ContributingProviders,
	}
	if r.Empty() {
		return out
	}
	p := *r.Probabilities
	out.Home, out.Away = &p.Home, &p.Away
	if r.Market.Has(model.OutcomeDraw) {
		out.Draw = &p.Draw
	}
	tip, conf, updated := r.Tip, r.Confidence, r.LastUpdated
	out.Tip, out.Confidence, out.LastUpdated = &tip, &conf, &updated
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
