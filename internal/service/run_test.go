package service

import (
	"context"
	"testing"

	"github.com/Harshitk-cp/pinaht/internal/domain"
	"github.com/Harshitk-cp/pinaht/internal/scenario"
	"github.com/Harshitk-cp/pinaht/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRunService(t *testing.T) (*RunService, *scenario.Scenario) {
	t.Helper()
	schema := domain.DefaultSchema()
	sc, err := scenario.Load("../scenario/testdata/backdoor.yaml", schema)
	require.NoError(t, err)
	svc := NewRunService(store.NewMemoryRunStore(), schema, RunnerConfig{MaxIterations: DefaultMaxIterations}, zap.NewNop())
	return svc, sc
}

func nodeIDs(records []domain.NodeRecord) []domain.NodeID {
	out := make([]domain.NodeID, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestExecuteBackdoorScenario(t *testing.T) {
	svc, sc := newRunService(t)
	ctx := context.Background()

	report, err := svc.Execute(ctx, sc)
	require.NoError(t, err)
	assert.Equal(t, domain.RunSuccessful, report.State)
	assert.Equal(t, 3, report.Iterations)
	assert.Len(t, report.Facts, 9)
	require.Len(t, report.Nodes, 3)
	assert.Equal(t, []string{"init", "portscan", "vsftpd_backdoor"},
		[]string{report.Nodes[0].Name, report.Nodes[1].Name, report.Nodes[2].Name})
	assert.Equal(t, []string{"we know that Target exists."}, report.Nodes[0].Log)
	assert.Equal(t, "backdoor", report.Nodes[2].MetaKey)

	stored, err := svc.Get(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, report.ID, stored.ID)
	assert.Equal(t, report.Facts, stored.Facts)
	assert.Equal(t, report.Edges, stored.Edges)

	runs, err := svc.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "vsftpd-backdoor", runs[0].Scenario)

	bfs, err := svc.Provenance(ctx, report.ID, "")
	require.NoError(t, err)
	assert.Equal(t, []domain.NodeID{0, 1, 2}, nodeIDs(bfs))

	byTime, err := svc.Provenance(ctx, report.ID, OrderTime)
	require.NoError(t, err)
	assert.Equal(t, []domain.NodeID{0, 1, 2}, nodeIDs(byTime))

	ancestors, err := svc.Ancestors(ctx, report.ID, 2)
	require.NoError(t, err)
	var order []domain.NodeID
	for _, e := range ancestors {
		order = append(order, e.Node)
	}
	assert.Equal(t, []domain.NodeID{0, 1, 2}, order)
}

func TestExecuteCapsIterations(t *testing.T) {
	schema := domain.DefaultSchema()
	sc, err := scenario.Load("../scenario/testdata/backdoor.yaml", schema)
	require.NoError(t, err)
	svc := NewRunService(store.NewMemoryRunStore(), schema, RunnerConfig{MaxIterations: 1}, zap.NewNop())

	report, err := svc.Execute(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, domain.RunInterrupted, report.State)
}

func TestRunServiceErrors(t *testing.T) {
	svc, sc := newRunService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrRunNotFound)

	report, err := svc.Execute(ctx, sc)
	require.NoError(t, err)

	_, err = svc.Provenance(ctx, report.ID, "random")
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = svc.Ancestors(ctx, report.ID, 99)
	assert.ErrorIs(t, err, ErrNodeNotFound)

	_, err = svc.Ancestors(ctx, uuid.New(), 0)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestExecuteRecordsRequestID(t *testing.T) {
	svc, sc := newRunService(t)
	ctx := domain.WithRequestID(context.Background(), "req-42")

	report, err := svc.Execute(ctx, sc)
	require.NoError(t, err)
	assert.Equal(t, "req-42", report.RequestID)

	stored, err := svc.Get(context.Background(), report.ID)
	require.NoError(t, err)
	assert.Equal(t, "req-42", stored.RequestID)

	runs, err := svc.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "req-42", runs[0].RequestID)
}
