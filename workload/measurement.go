package workload

import (
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// Operation names.
const (
	opAcquire = "ACQUIRE"
	opRelease = "RELEASE"
	opObserve = "OBSERVE"
)

var operations = []string{opAcquire, opRelease, opObserve}

// measurement keeps latency histograms in microseconds per operation. It is owned by one goroutine; histograms of
// different goroutines are combined with merge once they have stopped.
type measurement struct {
	hists map[string]*hdrhistogram.Histogram
}

func newMeasurement() *measurement {
	return &measurement{hists: make(map[string]*hdrhistogram.Histogram)}
}

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(1, 24*60*60*1000*1000, 3)
}

func (m *measurement) measure(op string, latency time.Duration) {
	h, ok := m.hists[op]
	if !ok {
		h = newHistogram()
		m.hists[op] = h
	}
	us := latency.Microseconds()
	// Latencies beyond the histogram range count as its highest value.
	if highest := h.HighestTrackableValue(); us > highest {
		us = highest
	}
	if err := h.RecordValue(us); err != nil {
		log.Debug("latency not recorded", zap.String("op", op), zap.Duration("latency", latency), zap.Error(err))
	}
}

func (m *measurement) merge(other *measurement) {
	for op, h := range other.hists {
		dst, ok := m.hists[op]
		if !ok {
			dst = newHistogram()
			m.hists[op] = dst
		}
		dst.Merge(h)
	}
}

// OpSummary describes the latency distribution of one operation.
type OpSummary struct {
	Operation string  `json:"operation"`
	Count     int64   `json:"count"`
	OPS       float64 `json:"ops"`
	AvgUs     int64   `json:"avg_us"`
	MinUs     int64   `json:"min_us"`
	MaxUs     int64   `json:"max_us"`
	P99Us     int64   `json:"p99_us"`
	P999Us    int64   `json:"p999_us"`
	P9999Us   int64   `json:"p9999_us"`
}

func (m *measurement) summary(elapsed time.Duration) []OpSummary {
	var res []OpSummary
	for _, op := range operations {
		h, ok := m.hists[op]
		if !ok {
			continue
		}
		count := h.TotalCount()
		var ops float64
		if elapsed > 0 {
			ops = float64(count) / elapsed.Seconds()
		}
		res = append(res, OpSummary{
			Operation: op,
			Count:     count,
			OPS:       ops,
			AvgUs:     int64(h.Mean()),
			MinUs:     h.Min(),
			MaxUs:     h.Max(),
			P99Us:     h.ValueAtQuantile(99),
			P999Us:    h.ValueAtQuantile(99.9),
			P9999Us:   h.ValueAtQuantile(99.99),
		})
	}
	return res
}
