// Package api implements the HTTP surface of the wave planning service.
package api

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"wavepick/internal/auth"
	"wavepick/internal/config"
	"wavepick/internal/opt"
	"wavepick/internal/store"
	"wavepick/internal/webhooks"
)

var log = logrus.WithField("prefix", "api")

type Server struct {
	Store  store.Store
	Pub    *webhooks.Publisher
	Auth   *auth.Verifier
	Broker EventBroker
	Accel  *opt.AccelerationContext
	Cfg    config.Config

	// inflight tracks async runs so shutdown can wait for them.
	inflight sync.WaitGroup
}

// NewServer wires the store, broker and solver acceleration from cfg. An
// empty DatabaseURL selects the in-memory store; an empty RedisURL selects
// the in-process broker.
func NewServer(ctx context.Context, cfg config.Config) (*Server, error) {
	var s store.Store
	if strings.TrimSpace(cfg.Server.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.Server.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.Server.Migrate {
			if err := sp.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		s = sp
	}
	var broker EventBroker = NewBroker()
	if cfg.Server.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.Server.RedisURL); err == nil {
			broker = rb
		} else {
			log.WithError(err).Warn("redis broker unavailable, using in-process broker")
		}
	}
	return &Server{
		Store:  s,
		Pub:    webhooks.NewPublisher(s),
		Auth:   auth.NewVerifierFromEnv(),
		Broker: broker,
		Accel:  opt.NewAccelerationContext(cfg.Server.MaxWorkers),
		Cfg:    cfg,
	}, nil
}

// NewWebhookWorker creates a background worker for run callbacks.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Cfg.Server.WebhookMaxAttempts)
}

// Wait blocks until every async run started by this server has finished
// or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Routes returns the full handler tree with middleware applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Instances
	mux.HandleFunc("/v1/instances", s.InstancesHandler)
	mux.HandleFunc("/v1/instances/", s.InstanceByIDHandler)

	// Solve and runs
	mux.HandleFunc("/v1/solve", s.SolveHandler)
	mux.HandleFunc("/v1/runs", s.RunsIndexHandler)
	mux.HandleFunc("/v1/runs/", s.RunByIDHandler) // includes /metrics, /callbacks, /solution, /events/stream, /events/ws

	// Optimizer config
	mux.HandleFunc("/v1/optimizer/config", s.OptimizerConfigHandler)

	// Health and ops
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.HandleFunc("/debug/info", s.DebugJSON)
	mux.Handle("/metrics", metricsHandler())
	mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("/openapi.json", s.OpenAPIHandler)

	return instrument(s.rateLimit(mux))
}
