package stm

import (
	"github.com/pingcap-incubator/tinystm/stm/memory"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Options fixes the geometry of the region and the engine's diagnostics. They cannot change after New.
type Options struct {
	// RegionSize is the size of the region in bytes.
	RegionSize int
	// StripeSize is the unit of locking and versioning in bytes.
	StripeSize int
	// ConflictWarnThreshold logs a warning each time one transaction call has conflicted this many more times. Zero
	// disables the warning.
	ConflictWarnThreshold uint64
}

// DefaultOptions is a 512 byte region of 8 byte stripes.
func DefaultOptions() Options {
	return Options{
		RegionSize:            memory.DefaultSize,
		StripeSize:            memory.DefaultStripeSize,
		ConflictWarnThreshold: 1 << 20,
	}
}

// STM owns one region and runs transactions against it. It is safe for concurrent use.
type STM struct {
	mem  *memory.Memory
	opts Options

	readCommits       atomic.Uint64
	writeCommits      atomic.Uint64
	aborts            atomic.Uint64
	retries           atomic.Uint64
	loadConflicts     atomic.Uint64
	lockConflicts     atomic.Uint64
	validateConflicts atomic.Uint64
}

// New creates an STM over a zeroed region.
func New(opts Options) (*STM, error) {
	mem, err := memory.New(opts.RegionSize, opts.StripeSize)
	if err != nil {
		return nil, errors.Annotate(err, "create stm region")
	}
	log.Debug("stm region created",
		zap.Int("region-size", mem.Size()),
		zap.Int("stripe-size", mem.StripeSize()),
		zap.Int("stripes", mem.NumStripes()))
	return &STM{mem: mem, opts: opts}, nil
}

// Size returns the size of the region in bytes.
func (s *STM) Size() int {
	return s.mem.Size()
}

// Clock returns the current value of the global version clock.
func (s *STM) Clock() uint64 {
	return s.mem.Clock()
}

// StripeSize returns the stripe size of the region.
func (s *STM) StripeSize() int {
	return s.mem.StripeSize()
}

// NumStripes returns the number of stripes in the region.
func (s *STM) NumStripes() int {
	return s.mem.NumStripes()
}

// Stats is a snapshot of the counters of one STM.
type Stats struct {
	Clock             uint64 `json:"clock"`
	ReadCommits       uint64 `json:"read_commits"`
	WriteCommits      uint64 `json:"write_commits"`
	Aborts            uint64 `json:"aborts"`
	Retries           uint64 `json:"retries"`
	LoadConflicts     uint64 `json:"load_conflicts"`
	LockConflicts     uint64 `json:"lock_conflicts"`
	ValidateConflicts uint64 `json:"validate_conflicts"`
}

// Conflicts returns the number of attempts discarded for any reason.
func (st Stats) Conflicts() uint64 {
	return st.LoadConflicts + st.LockConflicts + st.ValidateConflicts
}

// Stats returns the current counters. The fields are read one by one and are not a consistent cut.
func (s *STM) Stats() Stats {
	return Stats{
		Clock:             s.mem.Clock(),
		ReadCommits:       s.readCommits.Load(),
		WriteCommits:      s.writeCommits.Load(),
		Aborts:            s.aborts.Load(),
		Retries:           s.retries.Load(),
		LoadConflicts:     s.loadConflicts.Load(),
		LockConflicts:     s.lockConflicts.Load(),
		ValidateConflicts: s.validateConflicts.Load(),
	}
}

func (s *STM) conflict(m *txnMetrics, stage string, attempt uint64) {
	m.conflicts[stage].Inc()
	switch stage {
	case stageLoad:
		s.loadConflicts.Inc()
	case stageLock:
		s.lockConflicts.Inc()
	case stageValidate:
		s.validateConflicts.Inc()
	}
	if t := s.opts.ConflictWarnThreshold; t > 0 && attempt%t == 0 {
		log.Warn("transaction keeps conflicting",
			zap.Uint64("attempts", attempt),
			zap.String("stage", stage))
	}
}

func (s *STM) finish(m *txnMetrics, status Status, attempt uint64) {
	m.attempts.Observe(float64(attempt))
	switch status {
	case StatusOk:
		m.ok.Inc()
	case StatusRetry:
		m.retry.Inc()
		s.retries.Inc()
	case StatusAbort:
		m.abort.Inc()
		s.aborts.Inc()
	}
}

// ReadTransaction runs body on fresh ReadTxn objects until an attempt finishes without a conflict. It returns the value
// of an Ok result, ErrAborted for Abort and ErrRetry for a Retry that was not caused by a conflict.
func ReadTransaction[R any](s *STM, body func(tx *ReadTxn) Result[R]) (R, error) {
	var zero R
	for attempt := uint64(1); ; attempt++ {
		tx := newReadTxn(s.mem)
		res := body(tx)

		if res.status != StatusAbort && tx.aborted {
			s.conflict(readMetrics, stageLoad, attempt)
			continue
		}
		s.finish(readMetrics, res.status, attempt)
		switch res.status {
		case StatusOk:
			s.readCommits.Inc()
			return res.value, nil
		case StatusRetry:
			return zero, ErrRetry
		default:
			return zero, ErrAborted
		}
	}
}

// WriteTransaction runs body on fresh WriteTxn objects until an attempt commits or the body gives up. It returns the
// value of the committed Ok result, ErrAborted for Abort and ErrRetry for a Retry that was not caused by a conflict.
func WriteTransaction[R any](s *STM, body func(tx *WriteTxn) Result[R]) (R, error) {
	for attempt := uint64(1); ; attempt++ {
		if val, done, err := writeAttempt(s, body, attempt); done {
			return val, err
		}
	}
}

// writeAttempt runs one attempt. done is false when the attempt conflicted and must be run again.
func writeAttempt[R any](s *STM, body func(tx *WriteTxn) Result[R], attempt uint64) (val R, done bool, err error) {
	tx := newWriteTxn(s.mem)
	defer tx.release()

	res := body(tx)
	if res.status != StatusAbort && tx.aborted {
		s.conflict(writeMetrics, stageLoad, attempt)
		return val, false, nil
	}
	switch res.status {
	case StatusRetry:
		s.finish(writeMetrics, StatusRetry, attempt)
		return val, true, ErrRetry
	case StatusAbort:
		s.finish(writeMetrics, StatusAbort, attempt)
		return val, true, ErrAborted
	}

	if !tx.lockWriteSet() {
		s.conflict(writeMetrics, stageLock, attempt)
		return val, false, nil
	}

	wv := s.mem.BumpClock() + 1
	// No commit happened since the attempt started, so nothing it read can have changed.
	if wv != tx.readVersion+1 && !tx.validateReadSet() {
		s.conflict(writeMetrics, stageValidate, attempt)
		return val, false, nil
	}

	tx.commit(wv)
	s.writeCommits.Inc()
	s.finish(writeMetrics, StatusOk, attempt)
	return res.value, true, nil
}
