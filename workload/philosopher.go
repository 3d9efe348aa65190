package workload

import (
	"context"
	"runtime"
	"time"

	"github.com/pingcap-incubator/tinystm/stm"
	"github.com/pingcap/errors"
)

// Philosopher shares one chopstick stripe with each neighbour. A chopstick is held when the first byte of its stripe is 1.
type Philosopher struct {
	id    int
	left  int
	right int
	s     *stm.STM

	// Acquire transactions which committed but found a chopstick taken.
	spins   uint64
	measure *measurement
}

// NewPhilosopher seats philosopher id of n at the table laid out over the region of s.
func NewPhilosopher(s *stm.STM, id, n int) *Philosopher {
	stripe := s.StripeSize()
	return &Philosopher{
		id:      id,
		left:    stripe * id,
		right:   stripe * ((id + 1) % n),
		s:       s,
		measure: newMeasurement(),
	}
}

// Acquire tries to pick up both chopsticks in one transaction. It returns false if either is held by a neighbour.
func (p *Philosopher) Acquire() (bool, error) {
	return stm.WriteTransaction(p.s, func(tx *stm.WriteTxn) stm.Result[bool] {
		left, ok := tx.Load(p.left)
		if !ok {
			return stm.Retry[bool]()
		}
		right, ok := tx.Load(p.right)
		if !ok {
			return stm.Retry[bool]()
		}
		if left[0] != 0 || right[0] != 0 {
			return stm.Ok(false)
		}
		left[0], right[0] = 1, 1
		tx.Store(p.left, left)
		tx.Store(p.right, right)
		return stm.Ok(true)
	})
}

// Release puts both chopsticks down.
func (p *Philosopher) Release() error {
	_, err := stm.WriteTransaction(p.s, func(tx *stm.WriteTxn) stm.Result[struct{}] {
		left, ok := tx.Load(p.left)
		if !ok {
			return stm.Retry[struct{}]()
		}
		right, ok := tx.Load(p.right)
		if !ok {
			return stm.Retry[struct{}]()
		}
		left[0], right[0] = 0, 0
		tx.Store(p.left, left)
		tx.Store(p.right, right)
		return stm.Ok(struct{}{})
	})
	return err
}

// run eats rounds times, spinning until both chopsticks are free each time. It returns early and without error when
// ctx is done; the philosopher holds nothing at that point.
func (p *Philosopher) run(ctx context.Context, rounds int) error {
	for i := 0; i < rounds; i++ {
		start := time.Now()
		for {
			ok, err := p.Acquire()
			if err != nil {
				return errors.Annotatef(err, "philosopher %d acquire", p.id)
			}
			if ok {
				break
			}
			p.spins++
			if ctx.Err() != nil {
				return nil
			}
			runtime.Gosched()
		}
		p.measure.measure(opAcquire, time.Since(start))

		start = time.Now()
		if err := p.Release(); err != nil {
			return errors.Annotatef(err, "philosopher %d release", p.id)
		}
		p.measure.measure(opRelease, time.Since(start))

		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}
