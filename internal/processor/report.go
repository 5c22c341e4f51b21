package processor

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/pkg/errors"
)

// PairResult records how one (video, quote) pair went.
type PairResult struct {
	Input        string
	QuoteIndex   int
	Output       string
	Frames       int
	FontFallback bool
	Elapsed      time.Duration
	Err          error
}

// OK reports whether the pair produced its output.
func (p PairResult) OK() bool {
	return p.Err == nil
}

// Report summarizes a batch run.
type Report struct {
	Pairs   []PairResult
	Elapsed time.Duration
}

// Succeeded returns the number of pairs that produced an output.
func (r *Report) Succeeded() int {
	n := 0
	for _, p := range r.Pairs {
		if p.OK() {
			n++
		}
	}
	return n
}

// Failed returns the number of pairs that did not.
func (r *Report) Failed() int {
	return len(r.Pairs) - r.Succeeded()
}

// Err is non-nil when at least one pair failed.
func (r *Report) Err() error {
	if failed := r.Failed(); failed > 0 {
		return errors.Errorf("%d of %d videos failed", failed, len(r.Pairs))
	}
	return nil
}

// Render formats the report as a table followed by a one-line tally.
func (r *Report) Render() string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Input", "Quote", "Output", "Frames", "Time", "Status"})

	for _, p := range r.Pairs {
		status := "ok"
		if p.FontFallback {
			status = "ok (fallback font)"
		}
		if !p.OK() {
			status = "failed: " + firstLine(p.Err.Error())
		}
		frames := "-"
		if p.OK() {
			frames = strconv.Itoa(p.Frames)
		}
		output := "-"
		if p.Output != "" {
			output = filepath.Base(p.Output)
		}
		tw.AppendRow(table.Row{
			filepath.Base(p.Input),
			p.QuoteIndex + 1,
			output,
			frames,
			formatSeconds(p.Elapsed),
			status,
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 6, WidthMax: 60},
	})

	return fmt.Sprintf("%s\n%d succeeded, %d failed in %s\n",
		tw.Render(), r.Succeeded(), r.Failed(), formatSeconds(r.Elapsed))
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}
