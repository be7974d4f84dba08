package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Harshitk-cp/pinaht/internal/api/handlers"
	mw "github.com/Harshitk-cp/pinaht/internal/api/middleware"
	"github.com/Harshitk-cp/pinaht/internal/buildconfig"
	"github.com/Harshitk-cp/pinaht/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger reports database health. *pgxpool.Pool implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	APIToken       string
	RateLimitRPS   float64
	RateLimitBurst int
}

// App holds the router and the state shared by its middleware.
type App struct {
	Router    *chi.Mux
	Limiter   *mw.RateLimiter
	startTime time.Time
}

// NewApp wires the export API. db may be nil when runs are kept in memory.
func NewApp(runs *service.RunService, db Pinger, opts Options, logger *zap.Logger) *App {
	runHandler := handlers.NewRunHandler(runs)

	reg := prometheus.NewRegistry()
	metricsCollector := mw.NewMetricsCollector(reg)
	limiter := mw.NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst)

	r := chi.NewRouter()
	app := &App{
		Router:    r,
		Limiter:   limiter,
		startTime: time.Now(),
	}

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(limiter.Middleware)

	// Health and metrics (no auth)
	r.Get("/health", app.healthHandler(db))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
		prometheus.Gatherers{reg, prometheus.DefaultGatherer},
		promhttp.HandlerOpts{},
	))

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.TokenAuth(opts.APIToken))

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", runHandler.List)
			r.Post("/", runHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", runHandler.GetByID)
				r.Get("/facts", runHandler.Facts)
				r.Get("/provenance", runHandler.Provenance)
				r.Get("/provenance/{node}/ancestors", runHandler.Ancestors)
			})
		})
	})

	return app
}

func (app *App) healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":         "ok",
			"version":        buildconfig.Version(),
			"uptime_seconds": time.Since(app.startTime).Seconds(),
		})
	}
}
