package service

import (
	"fmt"
	"time"

	"github.com/Harshitk-cp/pinaht/internal/domain"
	"go.uber.org/zap"
)

// DefaultMaxIterations bounds a run when no ceiling is configured.
const DefaultMaxIterations = 100000

// Support is the justification of one bound slot: the precondition it met, the
// fact bound to it and the node currently vouching for that fact.
type Support struct {
	Slot         string
	Precondition domain.Precondition
	Node         domain.NodeID
	Fact         *domain.Fact
}

// Selection is the module chosen by Scheduler.Next.
type Selection struct {
	Name     string
	Module   domain.Module
	Priority float64
	MetaKey  string
	Meta     domain.MetaPrecondition
	Binding  domain.Binding
	Support  []Support
}

type element struct {
	name     string
	resolver *Resolver
	module   domain.Module
	flag     domain.Flag

	score   float64
	metaKey string
	binding domain.Binding
	support []Support
}

func (e *element) reset() {
	e.score = 0
	e.metaKey = ""
	e.binding = nil
	e.support = nil
}

// Scheduler scores every module and goal from its resolver and picks the next
// module to run.
type Scheduler struct {
	modules []*element
	goals   []*element
	maxIter int
	iter    int
	state   domain.RunState
	logger  *zap.Logger
}

// NewScheduler builds one resolver per module and flag. Names must be unique
// and every DNF valid.
func NewScheduler(modules []domain.Module, flags []domain.Flag, lineage domain.Lineage, maxIter int, logger *zap.Logger) (*Scheduler, error) {
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	s := &Scheduler{
		maxIter: maxIter,
		state:   domain.RunRunning,
		logger:  logger,
	}

	seen := make(map[string]bool)
	build := func(sc domain.Schedulable) (*element, error) {
		name := sc.Name()
		if seen[name] {
			return nil, fmt.Errorf("%w: %q registered twice", domain.ErrContractViolation, name)
		}
		seen[name] = true
		dnf := sc.PreconditionDNF()
		if err := dnf.Validate(); err != nil {
			return nil, fmt.Errorf("dnf of %s: %w", name, err)
		}
		return &element{name: name, resolver: NewResolver(dnf, lineage)}, nil
	}

	for _, m := range modules {
		e, err := build(m)
		if err != nil {
			return nil, err
		}
		e.module = m
		s.modules = append(s.modules, e)
	}
	for _, f := range flags {
		e, err := build(f)
		if err != nil {
			return nil, err
		}
		e.flag = f
		s.goals = append(s.goals, e)
	}
	return s, nil
}

// Resolvers returns the module resolvers followed by the goal resolvers.
func (s *Scheduler) Resolvers() []*Resolver {
	out := make([]*Resolver, 0, len(s.modules)+len(s.goals))
	for _, e := range s.modules {
		out = append(out, e.resolver)
	}
	for _, e := range s.goals {
		out = append(out, e.resolver)
	}
	return out
}

func (s *Scheduler) State() domain.RunState { return s.state }
func (s *Scheduler) Iterations() int        { return s.iter }

func (s *Scheduler) update(elements []*element) {
	for _, e := range elements {
		if !e.resolver.Updated() {
			continue
		}
		start := time.Now()
		candidates := e.resolver.Resolve()
		resolveDuration.Observe(time.Since(start).Seconds())

		e.reset()
		best := -1
		bestScore := 0.0
		for i, c := range candidates {
			if sc := c.Score(); best < 0 || sc > bestScore {
				best, bestScore = i, sc
			}
		}
		if best < 0 {
			continue
		}

		c := candidates[best]
		e.score = bestScore
		e.metaKey = c.MetaKey
		e.binding = c.Binding()
		for _, bs := range c.Slots {
			node, _ := bs.Fact.VouchedBy()
			e.support = append(e.support, Support{
				Slot:         bs.Name,
				Precondition: e.resolver.Precondition(bs.Name),
				Node:         node,
				Fact:         bs.Fact,
			})
		}
	}
}

// Next selects the module with the highest normalized score and marks its
// binding executed. The first maximum wins.
func (s *Scheduler) Next() (*Selection, error) {
	s.update(s.modules)

	sum := 0.0
	for _, e := range s.modules {
		sum += e.score
	}
	if sum == 0 {
		sum = 1
	}

	var best *element
	bestPriority := 0.0
	for _, e := range s.modules {
		p := e.score / sum
		if best == nil || p > bestPriority {
			best, bestPriority = e, p
		}
	}
	if best == nil || bestPriority == 0 {
		s.state = domain.RunUnsolved
		return nil, domain.ErrNoEligibleAction
	}

	best.resolver.MarkExecuted(best.metaKey, best.binding)
	s.logger.Debug("module selected",
		zap.String("module", best.name),
		zap.Float64("priority", bestPriority),
		zap.String("meta_key", best.metaKey),
	)
	return &Selection{
		Name:     best.name,
		Module:   best.module,
		Priority: bestPriority,
		MetaKey:  best.metaKey,
		Meta:     best.resolver.Meta(best.metaKey),
		Binding:  best.binding,
		Support:  append([]Support(nil), best.support...),
	}, nil
}

// Finished advances the iteration counter and reports whether the run is over:
// Interrupted once the ceiling is passed, Successful once every goal is bound
// and checked. A run without goals succeeds on its first tick.
func (s *Scheduler) Finished() bool {
	if s.iter > s.maxIter {
		s.logger.Info("run stopped at iteration ceiling", zap.Int("max_iterations", s.maxIter))
		s.state = domain.RunInterrupted
		return true
	}
	s.iter++
	iterationsTotal.Inc()

	s.update(s.goals)
	for _, g := range s.goals {
		if g.score <= 0 {
			return false
		}
	}
	for _, g := range s.goals {
		if !g.flag.Check(g.metaKey, g.binding) {
			return false
		}
	}
	s.logger.Info("all goals reached", zap.Int("iterations", s.iter))
	s.state = domain.RunSuccessful
	return true
}

// Rescan forces every resolver to resolve again.
func (s *Scheduler) Rescan() {
	for _, r := range s.Resolvers() {
		r.Invalidate()
	}
	s.update(s.modules)
	s.update(s.goals)
}

// Goals reports the current score of every flag.
func (s *Scheduler) Goals() []domain.GoalRecord {
	out := make([]domain.GoalRecord, 0, len(s.goals))
	for _, g := range s.goals {
		out = append(out, domain.GoalRecord{
			Name:        g.name,
			Description: g.flag.Description(),
			Score:       g.score,
			Reached:     g.score > 0 && g.flag.Check(g.metaKey, g.binding),
		})
	}
	return out
}
