package workload

import (
	"context"
	"sync"
	"time"

	"github.com/pingcap-incubator/tinystm/config"
	"github.com/pingcap-incubator/tinystm/stm"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// Run seats conf.Philosophers philosophers around the first stripes of the region of s and lets them eat conf.Rounds
// times each while an observer checks the table. The first error stops every goroutine and is returned with the report
// of what ran so far. Cancelling ctx stops the run early without an error.
func Run(ctx context.Context, s *stm.STM, conf *config.WorkloadConfig) (*Report, error) {
	n := conf.Philosophers
	if n < 2 || n > s.NumStripes() {
		return nil, errors.Errorf("cannot seat %d philosophers at %d chopsticks", n, s.NumStripes())
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	philosophers := make([]*Philosopher, n)
	for i := range philosophers {
		philosophers[i] = NewPhilosopher(s, i, n)
	}
	observer := NewObserver(s, conf.ObserverSamples, conf.ObserverInterval.Duration)

	log.Info("workload started",
		zap.Int("philosophers", n),
		zap.Int("rounds", conf.Rounds),
		zap.Int("observer-samples", conf.ObserverSamples),
		zap.Duration("observer-interval", conf.ObserverInterval.Duration))

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	start := time.Now()
	for _, p := range philosophers {
		wg.Add(1)
		go func(p *Philosopher) {
			defer wg.Done()
			if err := p.run(runCtx, conf.Rounds); err != nil {
				fail(err)
			}
		}(p)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := observer.run(runCtx); err != nil {
			fail(err)
		}
	}()
	wg.Wait()
	elapsed := time.Since(start)

	m := newMeasurement()
	spins := make([]uint64, n)
	for i, p := range philosophers {
		m.merge(p.measure)
		spins[i] = p.spins
	}
	m.merge(observer.measure)

	report := newReport(elapsed, m, spins, s.Stats())
	report.Interrupted = ctx.Err() != nil
	log.Info("workload finished",
		zap.Duration("elapsed", elapsed),
		zap.Bool("interrupted", report.Interrupted),
		zap.Uint64("write-commits", report.Stats.WriteCommits),
		zap.Uint64("conflicts", report.Stats.Conflicts()))
	return report, firstErr
}
