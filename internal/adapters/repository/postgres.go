package repository

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
)

//go:embed schema.sql
var schema string

// PostgresConfig holds connection parameters for PostgresStore.
type PostgresConfig struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

// PostgresStore is a Store backed by PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects, pings and applies the schema.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: apply schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("%w: snapshot id is required", ErrInvalidInput)
	}
	var raw []byte
	if len(snap.Raw) > 0 {
		var err error
		if raw, err = json.Marshal(snap.Raw); err != nil {
			return fmt.Errorf("postgres: encode raw odds: %w", err)
		}
	}
	const query = `
		INSERT INTO snapshots (id, provider_id, event_id, market, captured_at, home, draw, away, raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`
	p := snap.Probabilities
	_, err := s.pool.Exec(ctx, query,
		snap.ID, string(snap.ProviderID), string(snap.EventID), string(snap.Market),
		snap.CapturedAt, p.Home, p.Draw, p.Away, raw,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert snapshot %s: %w", snap.ID, err)
	}
	return nil
}

const snapshotColumns = `id, provider_id, event_id, market, captured_at, home, draw, away, raw`

func scanSnapshot(row pgx.Row) (model.Snapshot, error) {
	var (
		snap                    model.Snapshot
		provider, event, market string
		raw                     []byte
	)
	err := row.Scan(&snap.ID, &provider, &event, &market, &snap.CapturedAt,
		&snap.Probabilities.Home, &snap.Probabilities.Draw, &snap.Probabilities.Away, &raw)
	if err != nil {
		return model.Snapshot{}, err
	}
	snap.ProviderID = model.ProviderID(provider)
	snap.EventID = model.EventID(event)
	snap.Market = model.MarketType(market)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &snap.Raw); err != nil {
			return model.Snapshot{}, fmt.Errorf("decode raw odds: %w", err)
		}
	}
	return snap, nil
}

func (s *PostgresStore) SnapshotsForEvent(ctx context.Context, id model.EventID, since time.Time) ([]model.Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE event_id = $1 AND captured_at >= $2 ORDER BY captured_at`,
		string(id), since)
	if err != nil {
		return nil, fmt.Errorf("postgres: query snapshots %s: %w", id, err)
	}
	defer rows.Close()

	var out []model.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *PostgresStore) LatestCaptures(ctx context.Context, ids []model.EventID) (map[model.EventID]time.Time, error) {
	out := make(map[model.EventID]time.Time, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = string(id)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT event_id, MAX(captured_at) FROM snapshots WHERE event_id = ANY($1) GROUP BY event_id`, keys)
	if err != nil {
		return nil, fmt.Errorf("postgres: latest captures: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id string
			at time.Time
		)
		if err := rows.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("postgres: scan capture: %w", err)
		}
		out[model.EventID(id)] = at
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveEvent(ctx context.Context, e model.Event) error {
	if e.ID == "" {
		return fmt.Errorf("%w: event id is required", ErrInvalidInput)
	}
	const query = `
		INSERT INTO events (id, league_id, market, kickoff, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			league_id = EXCLUDED.league_id,
			market    = EXCLUDED.market,
			kickoff   = EXCLUDED.kickoff,
			status    = EXCLUDED.status`
	_, err := s.pool.Exec(ctx, query, string(e.ID), string(e.LeagueID), string(e.Market), e.Kickoff, string(e.Status))
	if err != nil {
		return fmt.Errorf("postgres: upsert event %s: %w", e.ID, err)
	}
	return nil
}

func scanEvent(row pgx.Row) (model.Event, error) {
	var id, league, market, status string
	var e model.Event
	if err := row.Scan(&id, &league, &market, &e.Kickoff, &status); err != nil {
		return model.Event{}, err
	}
	e.ID = model.EventID(id)
	e.LeagueID = model.LeagueID(league)
	e.Market = model.MarketType(market)
	e.Status = model.EventStatus(status)
	return e, nil
}

func (s *PostgresStore) Event(ctx context.Context, id model.EventID) (model.Event, error) {
	e, err := scanEvent(s.pool.QueryRow(ctx,
		`SELECT id, league_id, market, kickoff, status FROM events WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Event{}, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("postgres: get event %s: %w", id, err)
	}
	return e, nil
}

func (s *PostgresStore) EventsBetween(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, league_id, market, kickoff, status FROM events WHERE kickoff BETWEEN $1 AND $2 ORDER BY kickoff`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: query events: %w", err)
	}
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveOutcome(ctx context.Context, o model.MatchOutcome) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `UPDATE events SET status = $2 WHERE id = $1`, string(o.EventID), string(model.StatusFinished))
	if err != nil {
		return fmt.Errorf("postgres: finish event %s: %w", o.EventID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %s: %w", o.EventID, ErrNotFound)
	}
	const query = `
		INSERT INTO outcomes (event_id, actual, finalized_at) VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO UPDATE SET actual = EXCLUDED.actual, finalized_at = EXCLUDED.finalized_at`
	if _, err := tx.Exec(ctx, query, string(o.EventID), string(o.Actual), o.FinalizedAt); err != nil {
		return fmt.Errorf("postgres: save outcome %s: %w", o.EventID, err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ResolvedEvents(ctx context.Context, g Group, from, to time.Time) ([]model.ResolvedEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e.id, e.league_id, e.market, e.kickoff, e.status, o.actual, o.finalized_at
		FROM events e JOIN outcomes o ON o.event_id = e.id
		WHERE e.league_id = $1 AND e.market = $2 AND o.finalized_at >= $3 AND o.finalized_at < $4
		ORDER BY o.finalized_at`,
		string(g.League), string(g.Market), from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: query resolved events: %w", err)
	}

	var out []model.ResolvedEvent
	for rows.Next() {
		var (
			id, league, market, status, actual string
			r                                  model.ResolvedEvent
		)
		if err := rows.Scan(&id, &league, &market, &r.Event.Kickoff, &status, &actual, &r.Outcome.FinalizedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: scan resolved event: %w", err)
		}
		r.Event.ID = model.EventID(id)
		r.Event.LeagueID = model.LeagueID(league)
		r.Event.Market = model.MarketType(market)
		r.Event.Status = model.EventStatus(status)
		r.Outcome.EventID = r.Event.ID
		r.Outcome.Actual = model.Outcome(actual)
		out = append(out, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		snaps, err := s.SnapshotsForEvent(ctx, out[i].Event.ID, time.Time{})
		if err != nil {
			return nil, err
		}
		out[i].Snapshots = snaps
	}
	return out, nil
}

func (s *PostgresStore) Groups(ctx context.Context) ([]Group, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT league_id, market FROM events ORDER BY league_id, market`)
	if err != nil {
		return nil, fmt.Errorf("postgres: query groups: %w", err)
	}
	defer rows.Close()
	var out []Group
	for rows.Next() {
		var league, market string
		if err := rows.Scan(&league, &market); err != nil {
			return nil, fmt.Errorf("postgres: scan group: %w", err)
		}
		out = append(out, Group{League: model.LeagueID(league), Market: model.MarketType(market)})
	}
	return out, rows.Err()
}

const performanceColumns = `id, provider_id, league_id, market, window_start, window_end, brier, log_loss, samples, computed_at`

func scanPerformance(row pgx.Row) (model.PerformanceRecord, error) {
	var (
		r                        model.PerformanceRecord
		provider, league, market string
	)
	err := row.Scan(&r.ID, &provider, &league, &market, &r.WindowStart, &r.WindowEnd,
		&r.Brier, &r.LogLoss, &r.Samples, &r.ComputedAt)
	if err != nil {
		return model.PerformanceRecord{}, err
	}
	r.ProviderID = model.ProviderID(provider)
	r.LeagueID = model.LeagueID(league)
	r.Market = model.MarketType(market)
	return r, nil
}

func (s *PostgresStore) LatestPerformance(ctx context.Context, g Group, provider model.ProviderID) (model.PerformanceRecord, error) {
	r, err := scanPerformance(s.pool.QueryRow(ctx,
		`SELECT `+performanceColumns+` FROM provider_performance
		 WHERE league_id = $1 AND market = $2 AND provider_id = $3
		 ORDER BY window_end DESC LIMIT 1`,
		string(g.League), string(g.Market), string(provider)))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.PerformanceRecord{}, ErrNotFound
	}
	if err != nil {
		return model.PerformanceRecord{}, fmt.Errorf("postgres: latest performance: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) SavePerformance(ctx context.Context, r model.PerformanceRecord, replace bool) error {
	if replace {
		tag, err := s.pool.Exec(ctx, `
			UPDATE provider_performance SET
				window_start = $2, window_end = $3, brier = $4, log_loss = $5, samples = $6, computed_at = $7
			WHERE id = $1`,
			r.ID, r.WindowStart, r.WindowEnd, r.Brier, r.LogLoss, r.Samples, r.ComputedAt)
		if err != nil {
			return fmt.Errorf("postgres: update performance %s: %w", r.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("performance %s: %w", r.ID, ErrNotFound)
		}
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO provider_performance (`+performanceColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, string(r.ProviderID), string(r.LeagueID), string(r.Market), r.WindowStart, r.WindowEnd,
		r.Brier, r.LogLoss, r.Samples, r.ComputedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert performance %s: %w", r.ID, err)
	}
	return nil
}

func (s *PostgresStore) CurrentPerformance(ctx context.Context, g Group) ([]model.PerformanceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (provider_id) `+performanceColumns+` FROM provider_performance
		 WHERE league_id = $1 AND market = $2
		 ORDER BY provider_id, window_end DESC`,
		string(g.League), string(g.Market))
	if err != nil {
		return nil, fmt.Errorf("postgres: query performance: %w", err)
	}
	defer rows.Close()
	var out []model.PerformanceRecord
	for rows.Next() {
		r, err := scanPerformance(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan performance: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Weights(ctx context.Context, g Group) ([]model.ProviderWeight, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT provider_id, weight, updated_at FROM provider_weights
		 WHERE league_id = $1 AND market = $2 ORDER BY provider_id`,
		string(g.League), string(g.Market))
	if err != nil {
		return nil, fmt.Errorf("postgres: query weights: %w", err)
	}
	defer rows.Close()
	var out []model.ProviderWeight
	for rows.Next() {
		var (
			provider string
			w        = model.ProviderWeight{LeagueID: g.League, Market: g.Market}
		)
		if err := rows.Scan(&provider, &w.Weight, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan weight: %w", err)
		}
		w.ProviderID = model.ProviderID(provider)
		out = append(out, w)
	}
	return out, rows.Err()
}

// ReplaceWeights deletes the group's rows and upserts the new set in one
// transaction so readers never see a partial table.
func (s *PostgresStore) ReplaceWeights(ctx context.Context, g Group, rows []model.ProviderWeight) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM provider_weights WHERE league_id = $1 AND market = $2`,
		string(g.League), string(g.Market)); err != nil {
		return fmt.Errorf("postgres: clear weights: %w", err)
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO provider_weights (provider_id, league_id, market, weight, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (league_id, market, provider_id) DO UPDATE SET
			weight     = EXCLUDED.weight,
			updated_at = EXCLUDED.updated_at`
	for _, w := range rows {
		batch.Queue(query, string(w.ProviderID), string(g.League), string(g.Market), w.Weight, w.UpdatedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: upsert weights: %w", err)
	}
	return tx.Commit(ctx)
}
