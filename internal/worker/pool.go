package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shortloop/shortloop/internal/metrics"
	"github.com/shortloop/shortloop/internal/shortener"
)

// Pool fans broker work out to a set of workers and reports queue depth.
type Pool struct {
	broker  shortener.Broker
	workers []*Worker
	logger  *zap.Logger
}

// NewPool creates a Pool.
func NewPool(broker shortener.Broker, workers []*Worker, logger *zap.Logger) *Pool {
	return &Pool{
		broker:  broker,
		workers: workers,
		logger:  logger,
	}
}

// Run starts all workers and blocks until the context finishes and every
// worker has drained its current item.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(wk *Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.reportDepth(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
}

// reportDepth publishes the broker length gauge, the signal read by the
// external autoscaling loop.
func (p *Pool) reportDepth(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.broker.Length(ctx)
			if err != nil {
				p.logger.Warn("queue depth read failed", zap.Error(err))
				continue
			}
			metrics.SetQueueDepth(n)
		}
	}
}
