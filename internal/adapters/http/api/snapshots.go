package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/robsheahan/tipping-aggregator-web/internal/adapters/mq/queue"
	"github.com/robsheahan/tipping-aggregator-web/internal/adapters/mq/stream"
	service "github.com/robsheahan/tipping-aggregator-web/internal/app"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
)

const maxSnapshotBody = 1 << 20

// SnapshotIngester accepts provider snapshots.
type SnapshotIngester interface {
	Ingest(ctx context.Context, s model.Snapshot) (duplicate bool, err error)
}

// SnapshotsHandler handles snapshot submissions.
type SnapshotsHandler struct {
	deps SnapshotIngester
}

// NewSnapshotsHandler creates a new snapshots handler.
func NewSnapshotsHandler(deps SnapshotIngester) *SnapshotsHandler {
	return &SnapshotsHandler{deps: deps}
}

// HandlePostSnapshot handles POST /snapshots. The body uses the same shape
// as the snapshot stream: probabilities, or odds with their format.
func (h *SnapshotsHandler) HandlePostSnapshot(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_snapshot"
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSnapshotBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	snap, err := stream.DecodeSnapshot(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	dup, err := h.deps.Ingest(r.Context(), snap)
	switch {
	case err == nil && dup:
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true, SnapshotID: snap.ID})
	case err == nil:
		writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", SnapshotID: snap.ID})
	case errors.Is(err, service.ErrInvalidSnapshot):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, queue.ErrFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
	case errors.Is(err, queue.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", NewKind(op, ErrUnavailable))
	default:
		writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, ErrInternal, err))
	}
}
