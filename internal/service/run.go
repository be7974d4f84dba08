package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/pinaht/internal/domain"
	"github.com/Harshitk-cp/pinaht/internal/scenario"
	"github.com/Harshitk-cp/pinaht/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrRunNotFound  = errors.New("run not found")
	ErrNodeNotFound = errors.New("provenance node not found")
	ErrInvalidOrder = errors.New("order must be bfs or time")
)

// ProvenanceOrder selects how provenance nodes are listed.
type ProvenanceOrder string

const (
	OrderBFS  ProvenanceOrder = "bfs"
	OrderTime ProvenanceOrder = "time"
)

func ValidProvenanceOrder(s string) bool {
	switch ProvenanceOrder(s) {
	case OrderBFS, OrderTime:
		return true
	}
	return false
}

// RunService executes scenarios and serves stored run reports.
type RunService struct {
	runs   domain.RunStore
	schema *domain.Schema
	cfg    RunnerConfig
	logger *zap.Logger
}

func NewRunService(runs domain.RunStore, schema *domain.Schema, cfg RunnerConfig, logger *zap.Logger) *RunService {
	return &RunService{runs: runs, schema: schema, cfg: cfg, logger: logger}
}

func (s *RunService) Schema() *domain.Schema { return s.schema }

// Execute runs sc to completion and stores the report. A run aborted by a
// contract violation is stored too and its error returned alongside.
func (s *RunService) Execute(ctx context.Context, sc *scenario.Scenario) (*domain.RunReport, error) {
	cfg := s.cfg
	if sc.MaxIterations > 0 && (cfg.MaxIterations <= 0 || sc.MaxIterations < cfg.MaxIterations) {
		cfg.MaxIterations = sc.MaxIterations
	}
	logger := s.logger.With(zap.String("scenario", sc.Name))
	requestID := domain.RequestIDFrom(ctx)
	if requestID != "" {
		logger = logger.With(zap.String("request_id", requestID))
	}

	runner, err := NewRunner(s.schema, sc.Modules, sc.Flags, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build runner: %w", err)
	}
	if err := sc.SeedInto(runner); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}

	_, runErr := runner.Run(ctx)
	report := runner.Report(uuid.New(), sc.Name)
	report.RequestID = requestID
	if err := s.runs.Save(context.WithoutCancel(ctx), report); err != nil {
		return report, fmt.Errorf("save run: %w", err)
	}
	logger.Info("run stored",
		zap.String("run_id", report.ID.String()),
		zap.String("state", string(report.State)),
	)
	return report, runErr
}

func (s *RunService) Get(ctx context.Context, id uuid.UUID) (*domain.RunReport, error) {
	r, err := s.runs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return r, nil
}

func (s *RunService) List(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	return s.runs.List(ctx, limit)
}

// Provenance lists the nodes of a stored run reachable from init, breadth
// first or by end time.
func (s *RunService) Provenance(ctx context.Context, id uuid.UUID, order ProvenanceOrder) ([]domain.NodeRecord, error) {
	if order == "" {
		order = OrderBFS
	}
	if !ValidProvenanceOrder(string(order)) {
		return nil, ErrInvalidOrder
	}
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	g, err := r.Provenance()
	if err != nil {
		return nil, err
	}

	var ids []domain.NodeID
	switch order {
	case OrderTime:
		for _, n := range g.TimeOrdered() {
			ids = append(ids, n.ID)
		}
	default:
		ids = g.BFS(domain.InitNode, nil)
	}
	out := make([]domain.NodeRecord, 0, len(ids))
	for _, nid := range ids {
		out = append(out, r.Nodes[nid])
	}
	return out, nil
}

// Ancestors returns the execution history node depends on, dependencies first.
func (s *RunService) Ancestors(ctx context.Context, id uuid.UUID, node domain.NodeID) ([]domain.TopoEntry, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	g, err := r.Provenance()
	if err != nil {
		return nil, err
	}
	if _, ok := g.Node(node); !ok {
		return nil, ErrNodeNotFound
	}
	return g.Ancestors(node)
}
