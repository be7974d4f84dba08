package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// WithRequestID tags ctx with the id of the request that started a run.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id set by WithRequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RunState is the terminal (or current) state of a scheduling run.
type RunState string

const (
	RunRunning     RunState = "RUNNING"
	RunSuccessful  RunState = "SUCCESSFUL"
	RunInterrupted RunState = "INTERRUPTED"
	RunUnsolved    RunState = "UNSOLVED"
)

func ValidRunState(s string) bool {
	switch RunState(s) {
	case RunRunning, RunSuccessful, RunInterrupted, RunUnsolved:
		return true
	}
	return false
}

// FactRecord is the exported form of an attached fact.
type FactRecord struct {
	ID       FactID        `json:"id"`
	Parent   FactID        `json:"parent"`
	Slot     string        `json:"slot,omitempty"`
	Depth    int           `json:"depth"`
	Type     string        `json:"type"`
	Kind     Kind          `json:"kind"`
	Value    string        `json:"value,omitempty"`
	Rendered string        `json:"rendered"`
	Duality  []DualityEdge `json:"duality,omitempty"`
}

type NodeRecord struct {
	ID        NodeID    `json:"id"`
	Name      string    `json:"name"`
	MetaKey   string    `json:"meta_key,omitempty"`
	Meta      string    `json:"meta,omitempty"`
	Log       []string  `json:"log,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

type JustificationRecord struct {
	Slot         string `json:"slot"`
	Precondition string `json:"precondition"`
	Fact         FactID `json:"fact"`
}

type EdgeRecord struct {
	From           NodeID                `json:"from"`
	To             NodeID                `json:"to"`
	Justifications []JustificationRecord `json:"justifications"`
}

// GoalRecord is the final score of a flag.
type GoalRecord struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Score       float64 `json:"score"`
	Reached     bool    `json:"reached"`
}

// RunReport is everything a finished run leaves behind.
type RunReport struct {
	ID         uuid.UUID    `json:"id"`
	Scenario   string       `json:"scenario"`
	State      RunState     `json:"state"`
	Iterations int          `json:"iterations"`
	StartedAt  time.Time    `json:"started_at"`
	EndedAt    time.Time    `json:"ended_at"`
	Facts      []FactRecord `json:"facts"`
	Nodes      []NodeRecord `json:"nodes"`
	Edges      []EdgeRecord `json:"edges"`
	Goals      []GoalRecord `json:"goals,omitempty"`
	RequestID  string       `json:"request_id,omitempty"`
}

// RunSummary is the list view of a stored run.
type RunSummary struct {
	ID         uuid.UUID `json:"id"`
	Scenario   string    `json:"scenario"`
	State      RunState  `json:"state"`
	Iterations int       `json:"iterations"`
	FactCount  int       `json:"fact_count"`
	NodeCount  int       `json:"node_count"`
	RequestID  string    `json:"request_id,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

func (r *RunReport) Summary() RunSummary {
	return RunSummary{
		ID:         r.ID,
		Scenario:   r.Scenario,
		State:      r.State,
		Iterations: r.Iterations,
		FactCount:  len(r.Facts),
		NodeCount:  len(r.Nodes),
		RequestID:  r.RequestID,
		StartedAt:  r.StartedAt,
		EndedAt:    r.EndedAt,
	}
}

// Provenance rebuilds the execution graph of a stored report. Restored
// justifications carry the precondition text only.
func (r *RunReport) Provenance() (*ProvenanceGraph, error) {
	g := &ProvenanceGraph{}
	for i, n := range r.Nodes {
		if n.ID != NodeID(i) {
			return nil, contractf("node record %d has handle %d", i, n.ID)
		}
		g.AddNode(Node{
			Name:      n.Name,
			MetaKey:   n.MetaKey,
			Log:       n.Log,
			StartedAt: n.StartedAt,
			EndedAt:   n.EndedAt,
		})
	}
	for _, e := range r.Edges {
		js := make([]Justification, 0, len(e.Justifications))
		for _, j := range e.Justifications {
			js = append(js, Justification{Slot: j.Slot, Condition: j.Precondition, Fact: j.Fact})
		}
		if err := g.DrawEdge(e.From, e.To, js); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// ExportProvenance flattens g into records.
func ExportProvenance(g *ProvenanceGraph) ([]NodeRecord, []EdgeRecord) {
	nodes := make([]NodeRecord, 0, g.Len())
	for _, n := range g.Nodes() {
		rec := NodeRecord{
			ID:        n.ID,
			Name:      n.Name,
			MetaKey:   n.MetaKey,
			Log:       append([]string(nil), n.Log...),
			StartedAt: n.StartedAt,
			EndedAt:   n.EndedAt,
		}
		if n.Meta != nil {
			rec.Meta = n.Meta.String()
		}
		nodes = append(nodes, rec)
	}
	edges := make([]EdgeRecord, 0, len(g.edges))
	for _, e := range g.Edges() {
		rec := EdgeRecord{From: e.From, To: e.To}
		for _, j := range e.Justifications {
			rec.Justifications = append(rec.Justifications, JustificationRecord{
				Slot:         j.Slot,
				Precondition: j.Condition,
				Fact:         j.Fact,
			})
		}
		edges = append(edges, rec)
	}
	return nodes, edges
}

// RunStore persists finished runs.
type RunStore interface {
	Save(ctx context.Context, r *RunReport) error
	GetByID(ctx context.Context, id uuid.UUID) (*RunReport, error)
	List(ctx context.Context, limit int) ([]RunSummary, error)
	// DeleteEndedBefore removes runs that ended before cutoff.
	DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
