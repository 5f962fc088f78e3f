package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
)

// WeightsProvider exposes the stored provider weights.
type WeightsProvider interface {
	Weights(ctx context.Context, league model.LeagueID, m model.MarketType) ([]model.ProviderWeight, error)
}

// WeightsHandler handles weights requests.
type WeightsHandler struct {
	deps WeightsProvider
}

// NewWeightsHandler creates a new weights handler.
func NewWeightsHandler(deps WeightsProvider) *WeightsHandler {
	return &WeightsHandler{deps: deps}
}

type weightsResponse struct {
	LeagueID model.LeagueID         `json:"league_id"`
	Market   model.MarketType       `json:"market"`
	Weights  []model.ProviderWeight `json:"weights"`
}

// HandleGetWeights handles GET /leagues/{leagueID}/weights?market=.
// The market defaults to the two-way moneyline.
func (h *WeightsHandler) HandleGetWeights(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_weights"
	league := model.LeagueID(chi.URLParam(r, "leagueID"))
	market := model.MarketType(r.URL.Query().Get("market"))
	if market == "" {
		market = model.MarketTwoWay
	}
	if !market.Valid() {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("unknown market "+string(market))))
		return
	}

	rows, err := h.deps.Weights(r.Context(), league, market)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, ErrInternal, err))
		return
	}
	if rows == nil {
		rows = []model.ProviderWeight{}
	}
	writeJSON(w, http.StatusOK, weightsResponse{LeagueID: league, Market: market, Weights: rows})
}
