package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/angelmondragon/artisanmarket-backend/internal/orders"
	"github.com/angelmondragon/artisanmarket-backend/pkg/config"
	"github.com/angelmondragon/artisanmarket-backend/pkg/logger"
	"github.com/angelmondragon/artisanmarket-backend/pkg/metrics"
)

const (
	jobName          = "graph_reconciler"
	defaultBatchSize = 50
	defaultPollMs    = 1000
	maxBackoff       = 10 * time.Second
	jitterWindow     = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type pinger interface {
	Ping(context.Context) error
}

type drainer interface {
	DrainPendingGraphWrites(ctx context.Context, limit int) (orders.DrainResult, error)
}

type ServiceParams struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      pinger
	Graph   pinger
	Orders  drainer
	Metrics *metrics.JobMetrics
}

// Service replays queued purchase edges into the graph until the context ends.
type Service struct {
	logg         *logger.Logger
	db           pinger
	graph        pinger
	orders       drainer
	metrics      *metrics.JobMetrics
	batchSize    int
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Graph == nil {
		return nil, errors.New("graph store is required")
	}
	if params.Orders == nil {
		return nil, errors.New("order service is required")
	}

	batch := params.Config.Reconciler.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.Reconciler.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}

	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		graph:        params.Graph,
		orders:       params.Orders,
		metrics:      params.Metrics,
		batchSize:    batch,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	return pingDependency(ctx, s.logg, "neo4j", s.graph.Ping)
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	interval := s.pollInterval
	if interval <= 0 {
		interval = time.Duration(defaultPollMs) * time.Millisecond
	}
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "graph reconciler context canceled")
			return ctx.Err()
		default:
		}

		processed, err := s.processBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logg.Error(ctx, "graph reconciler batch error", err)
			backoff = nextBackoff(backoff, interval, maxBackoff)
			if err := s.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval

		if processed {
			continue
		}

		if err := s.sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

// processBatch reports whether the batch found rows, so a full queue is
// drained without waiting for the poll interval.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	start := time.Now()
	result, err := s.orders.DrainPendingGraphWrites(ctx, s.batchSize)
	s.metrics.ObserveDuration(jobName, time.Since(start))
	if err != nil {
		return false, err
	}
	if result.Empty() {
		return false, nil
	}

	s.metrics.AddSuccess(jobName, result.Done)
	s.metrics.AddFailure(jobName, result.Failed)
	s.metrics.AddDead(jobName, result.Dead)

	fields := map[string]any{
		"batch_size": s.batchSize,
		"fetched":    result.Fetched,
		"done":       result.Done,
		"failed":     result.Failed,
		"dead":       result.Dead,
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "graph reconciler batch complete")
	return true, nil
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	return d + jitter
}
