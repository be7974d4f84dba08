package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/pinaht/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

type RunStore struct {
	db *pgxpool.Pool
}

func NewRunStore(db *pgxpool.Pool) *RunStore {
	return &RunStore{db: db}
}

// Save writes the summary row, the full report and one row per provenance node
// in a single transaction.
func (s *RunStore) Save(ctx context.Context, r *domain.RunReport) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	reportJSON, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO runs (id, scenario, state, iterations, fact_count, node_count, started_at, ended_at, report, request_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			iterations = EXCLUDED.iterations,
			fact_count = EXCLUDED.fact_count,
			node_count = EXCLUDED.node_count,
			ended_at = EXCLUDED.ended_at,
			report = EXCLUDED.report`,
		r.ID, r.Scenario, string(r.State), r.Iterations, len(r.Facts), len(r.Nodes),
		r.StartedAt, r.EndedAt, reportJSON, r.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM run_nodes WHERE run_id = $1`, r.ID); err != nil {
		return fmt.Errorf("clear run nodes: %w", err)
	}

	batch := &pgx.Batch{}
	for _, n := range r.Nodes {
		logJSON, err := json.Marshal(n.Log)
		if err != nil {
			return fmt.Errorf("marshal node log: %w", err)
		}
		batch.Queue(
			`INSERT INTO run_nodes (run_id, node_id, name, meta_key, log, started_at, ended_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			r.ID, int(n.ID), n.Name, n.MetaKey, logJSON, n.StartedAt, n.EndedAt,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert run nodes: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *RunStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.RunReport, error) {
	var reportJSON []byte
	err := s.db.QueryRow(ctx,
		`SELECT report FROM runs WHERE id = $1`,
		id,
	).Scan(&reportJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	r := &domain.RunReport{}
	if err := json.Unmarshal(reportJSON, r); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return r, nil
}

func (s *RunStore) List(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, scenario, state, iterations, fact_count, node_count, started_at, ended_at, request_id
		 FROM runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RunSummary
	for rows.Next() {
		var rs domain.RunSummary
		var state string
		if err := rows.Scan(&rs.ID, &rs.Scenario, &state, &rs.Iterations, &rs.FactCount, &rs.NodeCount, &rs.StartedAt, &rs.EndedAt, &rs.RequestID); err != nil {
			return nil, err
		}
		rs.State = domain.RunState(state)
		out = append(out, rs)
	}
	return out, rows.Err()
}

// DeleteEndedBefore removes old runs; their nodes go with them.
func (s *RunStore) DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM runs WHERE ended_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ domain.RunStore = (*RunStore)(nil)
