package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/angelmondragon/artisanmarket-backend/internal/orders"
	"github.com/angelmondragon/artisanmarket-backend/pkg/config"
	"github.com/angelmondragon/artisanmarket-backend/pkg/logger"
	"github.com/angelmondragon/artisanmarket-backend/pkg/metrics"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type scriptedDrainer struct {
	mu      sync.Mutex
	results []orders.DrainResult
	errs    []error
	limits  []int
}

func (d *scriptedDrainer) DrainPendingGraphWrites(ctx context.Context, limit int) (orders.DrainResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.limits = append(d.limits, limit)
	i := len(d.limits) - 1
	var err error
	if i < len(d.errs) {
		err = d.errs[i]
	}
	if i < len(d.results) {
		return d.results[i], err
	}
	return orders.DrainResult{}, err
}

func (d *scriptedDrainer) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.limits)
}

func newTestService(t *testing.T, drainer drainer, m *metrics.JobMetrics) *Service {
	t.Helper()
	cfg := &config.Config{Reconciler: config.ReconcilerConfig{BatchSize: 25, PollIntervalMS: 5}}
	svc, err := NewService(ServiceParams{
		Config:  cfg,
		Logger:  logger.Nop(),
		DB:      stubPinger{},
		Graph:   stubPinger{},
		Orders:  drainer,
		Metrics: m,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestProcessBatchRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewJobMetrics(reg)
	drainer := &scriptedDrainer{results: []orders.DrainResult{{Fetched: 4, Done: 2, Failed: 1, Dead: 1}}}
	svc := newTestService(t, drainer, m)

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if drainer.limits[0] != 25 {
		t.Fatalf("expected configured batch size, got %d", drainer.limits[0])
	}
	n, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if n == 0 {
		t.Fatalf("expected job metrics to be exported")
	}
}

func TestProcessBatchEmptyQueue(t *testing.T) {
	svc := newTestService(t, &scriptedDrainer{}, nil)

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed {
		t.Fatalf("empty queue should not report processed")
	}
}

func TestProcessBatchPropagatesError(t *testing.T) {
	svc := newTestService(t, &scriptedDrainer{errs: []error{errors.New("tx failed")}}, nil)

	if _, err := svc.processBatch(context.Background()); err == nil {
		t.Fatalf("expected drain error")
	}
}

func TestRunDrainsUntilCanceled(t *testing.T) {
	drainer := &scriptedDrainer{
		results: []orders.DrainResult{{Fetched: 2, Done: 2}, {}, {}},
		errs:    []error{nil, errors.New("transient"), nil},
	}
	svc := newTestService(t, drainer, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := svc.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if drainer.calls() < 2 {
		t.Fatalf("expected the loop to continue after a failed batch, got %d calls", drainer.calls())
	}
}

func TestRunFailsWhenGraphUnreachable(t *testing.T) {
	svc := newTestService(t, &scriptedDrainer{}, nil)
	svc.graph = stubPinger{err: errors.New("connection refused")}

	if err := svc.Run(context.Background()); err == nil {
		t.Fatalf("expected readiness failure")
	}
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	cfg := &config.Config{}
	if _, err := NewService(ServiceParams{Config: cfg, Logger: logger.Nop(), DB: stubPinger{}, Graph: stubPinger{}}); err == nil {
		t.Fatalf("expected missing order service error")
	}
	svc, err := NewService(ServiceParams{Config: cfg, Logger: logger.Nop(), DB: stubPinger{}, Graph: stubPinger{}, Orders: &scriptedDrainer{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.batchSize != defaultBatchSize || svc.pollInterval != time.Duration(defaultPollMs)*time.Millisecond {
		t.Fatalf("expected defaults, got batch=%d poll=%s", svc.batchSize, svc.pollInterval)
	}
}

func TestNextBackoffCaps(t *testing.T) {
	base := time.Second
	if got := nextBackoff(0, base, maxBackoff); got != 2*time.Second {
		t.Fatalf("unexpected first backoff %s", got)
	}
	if got := nextBackoff(8*time.Second, base, maxBackoff); got != maxBackoff {
		t.Fatalf("expected cap, got %s", got)
	}
	if got := withJitter(time.Second); got < time.Second || got >= time.Second+jitterWindow {
		t.Fatalf("jitter out of range: %s", got)
	}
}
