package workload

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pingcap-incubator/tinystm/config"
	"github.com/pingcap-incubator/tinystm/stm"
	"github.com/pingcap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSTM(t *testing.T) *stm.STM {
	s, err := stm.New(stm.DefaultOptions())
	require.NoError(t, err)
	return s
}

func testWorkloadConfig() *config.WorkloadConfig {
	conf := config.NewTestConfig().Workload
	conf.Rounds = 500
	conf.ObserverSamples = 100
	return &conf
}

func TestPhilosopherSeats(t *testing.T) {
	s := newTestSTM(t)
	p := NewPhilosopher(s, 0, 8)
	assert.Equal(t, 0, p.left)
	assert.Equal(t, 8, p.right)
	p = NewPhilosopher(s, 7, 8)
	assert.Equal(t, 56, p.left)
	assert.Equal(t, 0, p.right)
}

func TestNeighboursShareChopstick(t *testing.T) {
	s := newTestSTM(t)
	p0 := NewPhilosopher(s, 0, 3)
	p1 := NewPhilosopher(s, 1, 3)
	p2 := NewPhilosopher(s, 2, 3)

	ok, err := p0.Acquire()
	require.NoError(t, err)
	assert.True(t, ok)

	// Both neighbours need one of p0's chopsticks.
	ok, err = p1.Acquire()
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = p2.Acquire()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, p0.Release())
	ok, err = p1.Acquire()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheckChopsticks(t *testing.T) {
	assert.NoError(t, CheckChopsticks([]byte{0, 0, 0, 0}))
	assert.NoError(t, CheckChopsticks([]byte{1, 1, 0, 0}))
	assert.NoError(t, CheckChopsticks([]byte{1, 1, 1, 1}))
	err := CheckChopsticks([]byte{1, 0, 0, 0})
	assert.Equal(t, ErrInconsistent, errors.Cause(err))
}

func TestObserverSeesHeldPairs(t *testing.T) {
	s := newTestSTM(t)
	p := NewPhilosopher(s, 3, 8)
	ok, err := p.Acquire()
	require.NoError(t, err)
	require.True(t, ok)

	o := NewObserver(s, 1, 0)
	chopsticks, err := o.Sample()
	require.NoError(t, err)
	assert.Len(t, chopsticks, 64)
	assert.Equal(t, byte(1), chopsticks[3])
	assert.Equal(t, byte(1), chopsticks[4])
	assert.NoError(t, CheckChopsticks(chopsticks))
}

func TestObserverDetectsHalfCommit(t *testing.T) {
	s := newTestSTM(t)
	_, err := stm.WriteTransaction(s, func(tx *stm.WriteTxn) stm.Result[struct{}] {
		tx.Store(16, []byte{1, 0, 0, 0, 0, 0, 0, 0})
		return stm.Ok(struct{}{})
	})
	require.NoError(t, err)

	o := NewObserver(s, 3, 0)
	err = o.run(context.Background())
	assert.Equal(t, ErrInconsistent, errors.Cause(err))
}

func TestRun(t *testing.T) {
	s := newTestSTM(t)
	conf := testWorkloadConfig()

	report, err := Run(context.Background(), s, conf)
	require.NoError(t, err)
	assert.False(t, report.Interrupted)
	assert.Len(t, report.Spins, conf.Philosophers)

	counts := make(map[string]int64)
	for _, op := range report.Ops {
		counts[op.Operation] = op.Count
	}
	assert.Equal(t, int64(conf.Philosophers*conf.Rounds), counts[opAcquire])
	assert.Equal(t, int64(conf.Philosophers*conf.Rounds), counts[opRelease])
	assert.Equal(t, int64(conf.ObserverSamples), counts[opObserve])

	// Every round commits one acquire and one release.
	assert.True(t, report.Stats.WriteCommits >= uint64(2*conf.Philosophers*conf.Rounds))
	assert.Equal(t, uint64(conf.ObserverSamples), report.Stats.ReadCommits)

	// Everyone put their chopsticks down.
	chopsticks, err := NewObserver(s, 1, 0).Sample()
	require.NoError(t, err)
	assert.Equal(t, make([]byte, s.NumStripes()), chopsticks)
}

func TestRunCancelled(t *testing.T) {
	s := newTestSTM(t)
	conf := testWorkloadConfig()
	conf.Rounds = 1 << 30

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := Run(ctx, s, conf)
	require.NoError(t, err)
	assert.True(t, report.Interrupted)
}

func TestRunRejectsBadTable(t *testing.T) {
	s := newTestSTM(t)
	conf := testWorkloadConfig()
	conf.Philosophers = 65
	_, err := Run(context.Background(), s, conf)
	assert.Error(t, err)
}

func TestReportRender(t *testing.T) {
	s := newTestSTM(t)
	conf := testWorkloadConfig()
	conf.Rounds = 10
	conf.ObserverSamples = 10
	report, err := Run(context.Background(), s, conf)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, report.Render(&buf, config.OutputStyleTable))
	assert.Contains(t, buf.String(), opAcquire)
	assert.Contains(t, buf.String(), "finished in")

	buf.Reset()
	require.NoError(t, report.Render(&buf, config.OutputStyleJSON))
	var decoded Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, report.Stats, decoded.Stats)
	assert.Equal(t, report.Spins, decoded.Spins)

	assert.Error(t, report.Render(&buf, "xml"))
}

func TestMeasurementClampsLongLatency(t *testing.T) {
	m := newMeasurement()
	m.measure(opAcquire, time.Millisecond)
	m.measure(opAcquire, 48*time.Hour)

	ops := m.summary(time.Second)
	require.Len(t, ops, 1)
	assert.Equal(t, int64(2), ops[0].Count)
	assert.True(t, ops[0].MaxUs >= (24*time.Hour).Microseconds()*999/1000)
}
