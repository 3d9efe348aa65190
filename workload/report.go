package workload

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/olekukonko/tablewriter"
	"github.com/pingcap-incubator/tinystm/config"
	"github.com/pingcap-incubator/tinystm/stm"
	"github.com/pingcap/errors"
)

var opHeader = []string{"Operation", "Count", "OPS", "Avg(us)", "Min(us)", "Max(us)", "99th(us)", "99.9th(us)", "99.99th(us)"}

// Report summarises one workload run.
type Report struct {
	Elapsed     time.Duration `json:"elapsed"`
	Interrupted bool          `json:"interrupted"`
	Ops         []OpSummary   `json:"ops"`
	// Spins counts, per philosopher, the acquire transactions which found a chopstick taken.
	Spins      []uint64  `json:"spins"`
	SpinMean   float64   `json:"spin_mean"`
	SpinStdDev float64   `json:"spin_stddev"`
	Stats      stm.Stats `json:"stats"`
}

func newReport(elapsed time.Duration, m *measurement, spins []uint64, st stm.Stats) *Report {
	r := &Report{
		Elapsed: elapsed,
		Ops:     m.summary(elapsed),
		Spins:   spins,
		Stats:   st,
	}
	data := make(stats.Float64Data, 0, len(spins))
	for _, s := range spins {
		data = append(data, float64(s))
	}
	// Both only fail on empty input.
	r.SpinMean, _ = stats.Mean(data)
	r.SpinStdDev, _ = stats.StandardDeviation(data)
	return r
}

// Render writes the report in the given output style.
func (r *Report) Render(w io.Writer, style string) error {
	switch style {
	case config.OutputStyleJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Trace(enc.Encode(r))
	case config.OutputStyleTable:
		r.renderTable(w)
		return nil
	}
	return errors.Errorf("unknown output style %q", style)
}

func (r *Report) renderTable(w io.Writer) {
	values := make([][]string, 0, len(r.Ops))
	for _, op := range r.Ops {
		values = append(values, []string{
			op.Operation,
			strconv.FormatInt(op.Count, 10),
			fmt.Sprintf("%.1f", op.OPS),
			strconv.FormatInt(op.AvgUs, 10),
			strconv.FormatInt(op.MinUs, 10),
			strconv.FormatInt(op.MaxUs, 10),
			strconv.FormatInt(op.P99Us, 10),
			strconv.FormatInt(op.P999Us, 10),
			strconv.FormatInt(op.P9999Us, 10),
		})
	}
	if len(values) > 0 {
		tb := tablewriter.NewWriter(w)
		tb.SetHeader(opHeader)
		tb.AppendBulk(values)
		tb.Render()
	}

	tb := tablewriter.NewWriter(w)
	tb.SetHeader([]string{"Clock", "Write commits", "Read commits", "Load conflicts", "Lock conflicts",
		"Validate conflicts", "Spin mean", "Spin stddev"})
	tb.Append([]string{
		strconv.FormatUint(r.Stats.Clock, 10),
		strconv.FormatUint(r.Stats.WriteCommits, 10),
		strconv.FormatUint(r.Stats.ReadCommits, 10),
		strconv.FormatUint(r.Stats.LoadConflicts, 10),
		strconv.FormatUint(r.Stats.LockConflicts, 10),
		strconv.FormatUint(r.Stats.ValidateConflicts, 10),
		fmt.Sprintf("%.1f", r.SpinMean),
		fmt.Sprintf("%.1f", r.SpinStdDev),
	})
	tb.Render()

	status := "finished"
	if r.Interrupted {
		status = "interrupted"
	}
	fmt.Fprintf(w, "%s in %v\n", status, r.Elapsed)
}
