package workload

import (
	"context"
	"time"

	"github.com/pingcap-incubator/tinystm/stm"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrInconsistent means the observer saw an odd number of held chopsticks, i.e. half of a commit.
var ErrInconsistent = errors.New("inconsistent chopsticks")

// Observer samples every chopstick of the region in one read transaction and checks that they are held in pairs.
type Observer struct {
	s       *stm.STM
	limiter *rate.Limiter
	samples int
	measure *measurement
}

// NewObserver takes samples snapshots, at most one per interval.
func NewObserver(s *stm.STM, samples int, interval time.Duration) *Observer {
	return &Observer{
		s:       s,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		samples: samples,
		measure: newMeasurement(),
	}
}

// Sample returns the first byte of every stripe, read in one transaction.
func (o *Observer) Sample() ([]byte, error) {
	stripe, n := o.s.StripeSize(), o.s.NumStripes()
	return stm.ReadTransaction(o.s, func(tx *stm.ReadTxn) stm.Result[[]byte] {
		chopsticks := make([]byte, n)
		for i := range chopsticks {
			v, ok := tx.Load(i * stripe)
			if !ok {
				return stm.Retry[[]byte]()
			}
			chopsticks[i] = v[0]
		}
		return stm.Ok(chopsticks)
	})
}

// CheckChopsticks returns ErrInconsistent unless an even number of chopsticks is held.
func CheckChopsticks(chopsticks []byte) error {
	held := 0
	for _, c := range chopsticks {
		if c != 0 {
			held++
		}
	}
	if held%2 != 0 {
		return errors.Annotatef(ErrInconsistent, "%d chopsticks held: %v", held, chopsticks)
	}
	return nil
}

func (o *Observer) run(ctx context.Context) error {
	for i := 0; i < o.samples; i++ {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil
		}
		start := time.Now()
		chopsticks, err := o.Sample()
		if err != nil {
			return errors.Annotate(err, "observer sample")
		}
		o.measure.measure(opObserve, time.Since(start))
		if err = CheckChopsticks(chopsticks); err != nil {
			log.Error("observer found a broken invariant", zap.Int("sample", i), zap.Error(err))
			return err
		}
		log.Debug("observer sample", zap.Int("sample", i), zap.Binary("chopsticks", chopsticks))
	}
	return nil
}
