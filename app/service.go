package app

import (
	"context"
	"fmt"

	"github.com/quayside/berthd/config"
	"github.com/quayside/berthd/core/conflict"
	"github.com/quayside/berthd/core/engine"
	"github.com/quayside/berthd/core/optimize"
	"github.com/quayside/berthd/core/persist"
	"github.com/quayside/berthd/core/reopt"
	"github.com/quayside/berthd/core/scoring"
	"github.com/quayside/berthd/core/state"
	"github.com/quayside/berthd/core/suggest"
	"github.com/quayside/berthd/core/validate"
	"github.com/quayside/berthd/core/whatif"
	"github.com/quayside/berthd/infra/feed"
	"github.com/quayside/berthd/infra/logger"
	"github.com/quayside/berthd/infra/metrics"
	"github.com/quayside/berthd/internal/eventbus"
)

// Service assembles the scheduling engine, the arrival feed and the metrics
// endpoint from configuration.
type Service struct {
	Engine *engine.Engine

	feed        *feed.Subscriber
	jnl         persist.Journal
	bus         eventbus.EventBus
	log         logger.Logger
	promEnabled bool
	promPort    int
}

// New creates a Service. seed is the initial port state, typically loaded
// from a scenario file; nil starts empty.
func New(cfg *config.Config, seed *state.Snapshot) (*Service, error) {
	logg := logger.New("service")
	bus := eventbus.New()

	st := state.NewStore(seed, bus)
	val := validate.New(cfg.Validate)
	scorer := scoring.New(cfg.Scoring)
	sug := suggest.New(cfg.Suggest, val, scorer, logger.New("suggest"))
	opt := optimize.New(cfg.Solver, val, scorer, logger.New("optimize"), bus)
	det := conflict.New(cfg.Conflicts, sug, logger.New("conflict"))
	re := reopt.New(cfg.Reopt, st, opt, det, logger.New("reopt"), bus)
	sim := whatif.New(cfg.Reopt, opt, det, logger.New("whatif"))

	var jnl persist.Journal
	switch cfg.Journal.Backend {
	case "sqlite":
		j, err := persist.NewSQLiteJournal(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		jnl = j
	default:
		jnl = persist.NopJournal{}
	}

	sink, err := metrics.New(cfg.Metrics, logg)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	eng := engine.New(engine.Deps{
		Store:     st,
		Suggester: sug,
		Optimizer: opt,
		Detector:  det,
		Reopt:     re,
		Simulator: sim,
		Journal:   jnl,
		Metrics:   sink,
		Log:       logger.New("engine"),
		Bus:       bus,
	})

	svc := &Service{
		Engine:      eng,
		jnl:         jnl,
		bus:         bus,
		log:         logg,
		promEnabled: cfg.Metrics.Prometheus.Enabled,
		promPort:    cfg.Metrics.Prometheus.Port,
	}

	if cfg.Feed.Broker != "" {
		sub, err := feed.NewSubscriber(cfg.Feed, eng)
		if err != nil {
			return nil, fmt.Errorf("feed: %w", err)
		}
		svc.feed = sub
	} else {
		logg.Warnf("no feed broker configured, running without live triggers")
	}
	return svc, nil
}

// Run starts the background solve loop and the metrics endpoint, then blocks
// until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	go func() {
		if err := s.Engine.Run(ctx); err != nil && ctx.Err() == nil {
			s.log.Errorf("solve loop: %v", err)
		}
	}()
	if s.promEnabled {
		go func() {
			if err := metrics.Serve(s.promPort, nil); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	<-ctx.Done()
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.feed != nil {
		s.feed.Disconnect()
	}
	return s.jnl.Close()
}
