package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/pinaht/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunnerConfig holds the tunables of a run.
type RunnerConfig struct {
	MaxIterations int
	SeedCertainty float64
	// Now defaults to time.Now.
	Now func() time.Time
}

// Runner drives the select, execute and commit loop over one fact graph.
type Runner struct {
	facts     *domain.FactGraph
	prov      *domain.ProvenanceGraph
	scheduler *Scheduler
	committer *Committer
	now       func() time.Time
	logger    *zap.Logger

	startedAt time.Time
	endedAt   time.Time
}

func NewRunner(schema *domain.Schema, modules []domain.Module, flags []domain.Flag, cfg RunnerConfig, logger *zap.Logger) (*Runner, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SeedCertainty == 0 {
		cfg.SeedCertainty = DefaultSeedCertainty
	}
	if err := domain.ValidCertainty(cfg.SeedCertainty); err != nil {
		return nil, fmt.Errorf("seed certainty: %w", err)
	}

	facts := domain.NewFactGraph(schema)
	prov := domain.NewProvenanceGraph(cfg.Now())
	scheduler, err := NewScheduler(modules, flags, facts, cfg.MaxIterations, logger)
	if err != nil {
		return nil, err
	}
	committer := NewCommitter(facts, prov, cfg.SeedCertainty, logger)
	for _, r := range scheduler.Resolvers() {
		committer.Register(r)
	}

	return &Runner{
		facts:     facts,
		prov:      prov,
		scheduler: scheduler,
		committer: committer,
		now:       cfg.Now,
		logger:    logger,
	}, nil
}

func (r *Runner) Facts() *domain.FactGraph            { return r.facts }
func (r *Runner) Provenance() *domain.ProvenanceGraph { return r.prov }
func (r *Runner) Scheduler() *Scheduler               { return r.scheduler }
func (r *Runner) Committer() *Committer               { return r.committer }

// Seed attaches start knowledge. A nil parent means the root.
func (r *Runner) Seed(parent *domain.Fact, slot string, f *domain.Fact) error {
	return r.committer.Seed(parent, slot, f)
}

// Run loops until the scheduler finishes, no module is eligible or ctx is done.
// Module failures are logged and followed by a rescan. Contract violations
// end the run with an error.
func (r *Runner) Run(ctx context.Context) (domain.RunState, error) {
	r.startedAt = r.now()
	defer func() {
		r.endedAt = r.now()
		runsFinished.WithLabelValues(string(r.scheduler.State())).Inc()
	}()
	r.logger.Info("run started", zap.Int("facts", r.facts.Len()))

	for !r.scheduler.Finished() {
		if err := ctx.Err(); err != nil {
			r.scheduler.state = domain.RunInterrupted
			return r.scheduler.State(), err
		}

		sel, err := r.scheduler.Next()
		if errors.Is(err, domain.ErrNoEligibleAction) {
			r.logger.Info("no more modules can be executed", zap.Int("iterations", r.scheduler.Iterations()))
			break
		}
		if err != nil {
			return r.scheduler.State(), err
		}

		if err := r.step(ctx, sel); err != nil {
			if errors.Is(err, domain.ErrContractViolation) {
				r.logger.Error("run aborted", zap.String("module", sel.Name), zap.Error(err))
				return r.scheduler.State(), err
			}
			moduleExecutions.WithLabelValues(sel.Name, "error").Inc()
			r.logger.Warn("module failed, rescanning",
				zap.String("module", sel.Name),
				zap.String("meta_key", sel.MetaKey),
				zap.Error(err),
			)
			r.scheduler.Rescan()
			continue
		}
		moduleExecutions.WithLabelValues(sel.Name, "ok").Inc()
	}

	r.logger.Info("run finished",
		zap.String("state", string(r.scheduler.State())),
		zap.Int("iterations", r.scheduler.Iterations()),
		zap.Int("facts", r.facts.Len()),
		zap.Int("nodes", r.prov.Len()),
	)
	return r.scheduler.State(), nil
}

// step executes one selection and commits its buffer. Module errors come back
// wrapped in ErrModule; the graphs are untouched in that case.
func (r *Runner) step(ctx context.Context, sel *Selection) error {
	r.logger.Info("executing module",
		zap.String("module", sel.Name),
		zap.Float64("priority", sel.Priority),
		zap.String("meta_key", sel.MetaKey),
	)
	buf := domain.NewWriteBuffer(sel.Name)
	started := r.now()
	if err := execute(ctx, sel, buf); err != nil {
		return err
	}
	ended := r.now()

	if _, err := r.committer.Commit(buf, sel, started, ended); err != nil {
		return err
	}
	return nil
}

func execute(ctx context.Context, sel *Selection, buf *domain.WriteBuffer) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = domain.ModuleError(fmt.Errorf("%s panicked: %v", sel.Name, p))
		}
	}()
	if err := sel.Module.Execute(ctx, buf, sel.MetaKey, sel.Binding); err != nil {
		if errors.Is(err, domain.ErrContractViolation) {
			return err
		}
		return domain.ModuleError(fmt.Errorf("%s: %w", sel.Name, err))
	}
	return nil
}

// Report snapshots the run for storage and export.
func (r *Runner) Report(id uuid.UUID, scenario string) *domain.RunReport {
	nodes, edges := domain.ExportProvenance(r.prov)
	return &domain.RunReport{
		ID:         id,
		Scenario:   scenario,
		State:      r.scheduler.State(),
		Iterations: r.scheduler.Iterations(),
		StartedAt:  r.startedAt,
		EndedAt:    r.endedAt,
		Facts:      r.facts.Export(),
		Nodes:      nodes,
		Edges:      edges,
		Goals:      r.scheduler.Goals(),
	}
}
