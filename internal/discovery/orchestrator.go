package discovery

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"pdsno.io/controller/internal/pkg/logger"
	"pdsno.io/controller/internal/pkg/worker"
)

// Orchestrator runs one or more probes over a target address list each
// discovery cycle, fanning work out through the Discovery worker pool.
type Orchestrator struct {
	pool        *worker.Pool
	probes      []Probe
	channelSize int
}

// NewOrchestrator creates an orchestrator that dispatches probe work onto
// pool. channelSize bounds the in-flight target backlog per cycle,
// matching the single-producer bounded-channel design.
func NewOrchestrator(pool *worker.Pool, probes []Probe, channelSize int) *Orchestrator {
	if channelSize <= 0 {
		channelSize = 64
	}
	return &Orchestrator{pool: pool, probes: probes, channelSize: channelSize}
}

// Run executes one discovery cycle against region, probing every target
// with every configured probe, and returns all successful results.
// Individual probe failures are logged and skipped rather than aborting
// the cycle.
func (o *Orchestrator) Run(ctx context.Context, region string, targets []string) ([]*ProbeResult, error) {
	guarded := make([]*guardedProbe, len(o.probes))
	for i, p := range o.probes {
		guarded[i] = newGuardedProbe(p)
		if err := guarded[i].initialize(ctx, region); err != nil {
			return nil, err
		}
	}
	defer func() {
		for _, g := range guarded {
			if err := g.finalize(ctx); err != nil {
				logger.Warn("probe finalize failed", zap.String("probe", g.Name()), zap.Error(err))
			}
		}
	}()

	targetCh := make(chan string, o.channelSize)
	go func() {
		defer close(targetCh)
		for _, t := range targets {
			select {
			case targetCh <- t:
			case <-ctx.Done():
				return
			}
		}
	}()

	var (
		mu      sync.Mutex
		results []*ProbeResult
		wg      sync.WaitGroup
	)

	for target := range targetCh {
		target := target
		for _, g := range guarded {
			g := g
			wg.Add(1)
			err := o.pool.Submit(ctx, func(ctx context.Context) {
				defer wg.Done()
				res, err := g.execute(ctx, target)
				if err != nil {
					logger.Debug("probe execute failed", zap.String("probe", g.Name()), zap.String("target", target), zap.Error(err))
					return
				}
				if res == nil {
					return
				}
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			})
			if err != nil {
				wg.Done()
				logger.Warn("probe submit failed", zap.String("probe", g.Name()), zap.String("target", target), zap.Error(err))
			}
		}
	}

	wg.Wait()
	return results, ctx.Err()
}
