package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	service "github.com/robsheahan/tipping-aggregator-web/internal/app"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/polling"
)

// EventDependencies defines the interface for event endpoints.
type EventDependencies interface {
	RegisterEvent(ctx context.Context, e model.Event) error
	RecordOutcome(ctx context.Context, o model.MatchOutcome) error
	Consensus(ctx context.Context, id model.EventID) (model.ConsensusResult, error)
	PollDecision(ctx context.Context, id model.EventID) (polling.Decision, error)
}

// EventsHandler handles fixture, outcome, consensus and polling requests.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

type eventRequest struct {
	LeagueID string            `json:"league_id"`
	Market   model.MarketType  `json:"market"`
	Kickoff  time.Time         `json:"kickoff"`
	Status   model.EventStatus `json:"status,omitempty"`
}

type outcomeRequest struct {
	Result      string    `json:"result"`
	FinalizedAt time.Time `json:"finalized_at"`
}

// HandlePutEvent handles PUT /events/{eventID}.
func (h *EventsHandler) HandlePutEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_event"
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	e := model.Event{
		ID:       model.EventID(chi.URLParam(r, "eventID")),
		LeagueID: model.LeagueID(req.LeagueID),
		Market:   req.Market,
		Kickoff:  req.Kickoff,
		Status:   req.Status,
	}
	if err := h.deps.RegisterEvent(r.Context(), e); err != nil {
		writeEventError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "stored"})
}

// HandlePostOutcome handles POST /events/{eventID}/outcome.
func (h *EventsHandler) HandlePostOutcome(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_outcome"
	var req outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	actual, ok := model.OutcomeFromResult(req.Result)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("unknown result "+req.Result)))
		return
	}
	o := model.MatchOutcome{
		EventID:     model.EventID(chi.URLParam(r, "eventID")),
		Actual:      actual,
		FinalizedAt: req.FinalizedAt,
	}
	if err := h.deps.RecordOutcome(r.Context(), o); err != nil {
		writeEventError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "stored"})
}

// HandleGetConsensus handles GET /events/{eventID}/consensus.
func (h *EventsHandler) HandleGetConsensus(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_consensus"
	res, err := h.deps.Consensus(r.Context(), model.EventID(chi.URLParam(r, "eventID")))
	if err != nil {
		writeEventError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, newConsensusResponse(res))
}

// HandleGetPoll handles GET /events/{eventID}/poll.
func (h *EventsHandler) HandleGetPoll(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_poll"
	d, err := h.deps.PollDecision(r.Context(), model.EventID(chi.URLParam(r, "eventID")))
	if err != nil {
		writeEventError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, pollResponse{
		EventID:          d.EventID,
		Market:           d.Market,
		MinutesToKickoff: d.MinutesToKickoff,
		Tier:             d.Tier,
		IntervalSeconds:  int(d.Interval / time.Second),
		Skip:             d.Skip,
	})
}

type pollResponse struct {
	EventID          model.EventID    `json:"event_id"`
	Market           model.MarketType `json:"market"`
	MinutesToKickoff float64          `json:"minutes_to_kickoff"`
	Tier             polling.Tier     `json:"tier"`
	IntervalSeconds  int              `json:"interval_seconds"`
	Skip             bool             `json:"skip"`
}

func writeEventError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownEvent):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	case errors.Is(err, service.ErrInvalidEvent):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, ErrInternal, err))
	}
}
