package stm

import "github.com/prometheus/client_golang/prometheus"

const (
	txnTypeRead  = "read"
	txnTypeWrite = "write"

	stageLoad     = "load"
	stageLock     = "lock"
	stageValidate = "validate"
)

var (
	txnCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinystm",
			Subsystem: "txn",
			Name:      "finished_total",
			Help:      "Counter of finished transaction calls by outcome.",
		}, []string{"type", "result"})

	conflictCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinystm",
			Subsystem: "txn",
			Name:      "conflict_total",
			Help:      "Counter of discarded transaction attempts by the stage that detected the conflict.",
		}, []string{"type", "stage"})

	attemptHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tinystm",
			Subsystem: "txn",
			Name:      "attempts",
			Help:      "Bucketed histogram of attempts needed by one transaction call.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
		}, []string{"type"})
)

func init() {
	prometheus.MustRegister(txnCounter)
	prometheus.MustRegister(conflictCounter)
	prometheus.MustRegister(attemptHistogram)
}

// txnMetrics caches the label children of one transaction type so the hot path skips the label lookup.
type txnMetrics struct {
	ok, retry, abort prometheus.Counter
	conflicts        map[string]prometheus.Counter
	attempts         prometheus.Observer
}

func newTxnMetrics(typ string) *txnMetrics {
	return &txnMetrics{
		ok:    txnCounter.WithLabelValues(typ, StatusOk.String()),
		retry: txnCounter.WithLabelValues(typ, StatusRetry.String()),
		abort: txnCounter.WithLabelValues(typ, StatusAbort.String()),
		conflicts: map[string]prometheus.Counter{
			stageLoad:     conflictCounter.WithLabelValues(typ, stageLoad),
			stageLock:     conflictCounter.WithLabelValues(typ, stageLock),
			stageValidate: conflictCounter.WithLabelValues(typ, stageValidate),
		},
		attempts: attemptHistogram.WithLabelValues(typ),
	}
}

var (
	readMetrics  = newTxnMetrics(txnTypeRead)
	writeMetrics = newTxnMetrics(txnTypeWrite)
)
