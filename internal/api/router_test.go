package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/Harshitk-cp/pinaht/internal/domain"
	"github.com/Harshitk-cp/pinaht/internal/service"
	"github.com/Harshitk-cp/pinaht/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func newTestApp(t *testing.T, token string, db Pinger) *App {
	t.Helper()
	runs := service.NewRunService(store.NewMemoryRunStore(), domain.DefaultSchema(),
		service.RunnerConfig{MaxIterations: 100}, zap.NewNop())
	return NewApp(runs, db, Options{APIToken: token, RateLimitRPS: 1000, RateLimitBurst: 1000}, zap.NewNop())
}

func do(t *testing.T, app *App, method, path string, body []byte, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createRun(t *testing.T, app *App, token string) domain.RunSummary {
	t.Helper()
	body, err := os.ReadFile("../scenario/testdata/backdoor.yaml")
	require.NoError(t, err)
	rec := do(t, app, http.MethodPost, "/v1/runs", body, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[domain.RunSummary](t, rec)
}

func TestRunsAPI(t *testing.T) {
	app := newTestApp(t, "", nil)
	sum := createRun(t, app, "")
	assert.Equal(t, domain.RunSuccessful, sum.State)
	assert.Equal(t, 9, sum.FactCount)
	assert.Equal(t, 3, sum.NodeCount)
	base := "/v1/runs/" + sum.ID.String()

	t.Run("list", func(t *testing.T) {
		rec := do(t, app, http.MethodGet, "/v1/runs?limit=5", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[struct{ Runs []domain.RunSummary }](t, rec)
		require.Len(t, got.Runs, 1)
		assert.Equal(t, sum.ID, got.Runs[0].ID)
	})

	t.Run("get", func(t *testing.T) {
		rec := do(t, app, http.MethodGet, base, nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[domain.RunReport](t, rec)
		assert.Equal(t, "vsftpd-backdoor", got.Scenario)
		assert.Len(t, got.Edges, 3)
	})

	t.Run("facts", func(t *testing.T) {
		rec := do(t, app, http.MethodGet, base+"/facts", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[struct{ Facts []domain.FactRecord }](t, rec)
		require.Len(t, got.Facts, 9)
		assert.Equal(t, domain.RootID, got.Facts[0].ID)
	})

	t.Run("provenance", func(t *testing.T) {
		rec := do(t, app, http.MethodGet, base+"/provenance?order=time", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[struct{ Nodes []domain.NodeRecord }](t, rec)
		require.Len(t, got.Nodes, 3)
		assert.Equal(t, "init", got.Nodes[0].Name)
	})

	t.Run("ancestors", func(t *testing.T) {
		rec := do(t, app, http.MethodGet, base+"/provenance/2/ancestors", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[struct{ Ancestors []domain.TopoEntry }](t, rec)
		require.Len(t, got.Ancestors, 3)
		assert.Equal(t, domain.NodeID(2), got.Ancestors[2].Node)
	})
}

func TestRunsAPIErrors(t *testing.T) {
	app := newTestApp(t, "", nil)
	sum := createRun(t, app, "")
	base := "/v1/runs/" + sum.ID.String()
	missing := "/v1/runs/" + uuid.New().String()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"bad scenario", http.MethodPost, "/v1/runs", "modules: []", http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/v1/runs?limit=-1", "", http.StatusBadRequest},
		{"bad run id", http.MethodGet, "/v1/runs/not-a-uuid", "", http.StatusBadRequest},
		{"unknown run", http.MethodGet, missing, "", http.StatusNotFound},
		{"unknown run facts", http.MethodGet, missing + "/facts", "", http.StatusNotFound},
		{"bad order", http.MethodGet, base + "/provenance?order=random", "", http.StatusBadRequest},
		{"unknown run provenance", http.MethodGet, missing + "/provenance", "", http.StatusNotFound},
		{"bad node", http.MethodGet, base + "/provenance/x/ancestors", "", http.StatusBadRequest},
		{"unknown node", http.MethodGet, base + "/provenance/42/ancestors", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, app, tt.method, tt.path, []byte(tt.body), "")
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			got := decode[map[string]string](t, rec)
			assert.NotEmpty(t, got["error"])
		})
	}
}

func TestRunsAPIContractViolation(t *testing.T) {
	app := newTestApp(t, "", nil)
	body := []byte(`
name: broken
seed:
  - slot: target
    fact: {type: Target}
modules:
  - name: misplaced
    disjuncts: [{key: k, slots: [{name: t, type: Target}]}]
    produce:
      - {parent: t, slot: port, certainty: 1, fact: {type: Port, value: "22"}}
flags:
  - name: root_shell
    disjuncts: [{key: shell, slots: [{name: p, type: Privilege}]}]
`)
	rec := do(t, app, http.MethodPost, "/v1/runs", body, "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	got := decode[map[string]string](t, rec)
	assert.Contains(t, got["error"], "no slot")

	id, err := uuid.Parse(got["run_id"])
	require.NoError(t, err)
	rec = do(t, app, http.MethodGet, "/v1/runs/"+id.String(), nil, "")
	assert.Equal(t, http.StatusOK, rec.Code, "aborted runs are stored too")
}

func TestTokenAuth(t *testing.T) {
	app := newTestApp(t, "s3cret", nil)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cret", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/runs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			app.Router.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	rec := do(t, app, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code, "health needs no token")
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestApp(t, "", nil), http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", got["status"])
	assert.Equal(t, "dev", got["version"])

	rec = do(t, newTestApp(t, "", pinger{err: errors.New("connection refused")}), http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRunsCarryRequestID(t *testing.T) {
	app := newTestApp(t, "", nil)
	body, err := os.ReadFile("../scenario/testdata/backdoor.yaml")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"client id kept", "trace-7f3a", true},
		{"missing id generated", "", false},
		{"overlong id replaced", strings.Repeat("x", 65), false},
		{"unprintable id replaced", "a b", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewReader(body))
			if tt.header != "" {
				req.Header.Set("X-Request-ID", tt.header)
			}
			rec := httptest.NewRecorder()
			app.Router.ServeHTTP(rec, req)
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

			id := rec.Header().Get("X-Request-ID")
			if tt.keep {
				assert.Equal(t, tt.header, id)
			} else {
				_, err := uuid.Parse(id)
				assert.NoError(t, err, "replacement id %q", id)
			}

			sum := decode[domain.RunSummary](t, rec)
			assert.Equal(t, id, sum.RequestID)

			rec = do(t, app, http.MethodGet, "/v1/runs/"+sum.ID.String(), nil, "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, id, decode[domain.RunReport](t, rec).RequestID)
		})
	}
}

func TestRequestIDAndMetrics(t *testing.T) {
	app := newTestApp(t, "", nil)
	rec := do(t, app, http.MethodGet, "/v1/runs", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(t, app, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pinaht_http_requests_total")
}
