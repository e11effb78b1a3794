// Copyright (c) Microsoft. All rights reserved.

package batch

import (
	"fmt"
	"math"
	"strings"

	"github.com/local-agents/ollama-agent/ui"
)

// Summary aggregates a batch.
type Summary struct {
	Total       int
	Succeeded   int
	Failed      int
	Interrupted int
	// SuccessRate is a percentage in [0, 100].
	SuccessRate float64
	// AverageTime is the mean execution time of successful tasks, in seconds.
	AverageTime float64
	Failures    []Result
}

// Summarize counts outcomes. Tasks still pending or running count toward
// the total only.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	var total float64
	for _, r := range results {
		switch r.Status {
		case StatusSucceeded:
			s.Succeeded++
			total += r.ExecutionTime
		case StatusFailed:
			s.Failed++
			s.Failures = append(s.Failures, r)
		case StatusInterrupted:
			s.Interrupted++
		}
	}
	if s.Total > 0 {
		s.SuccessRate = float64(s.Succeeded) / float64(s.Total) * 100
	}
	if s.Succeeded > 0 {
		s.AverageTime = math.Round(total/float64(s.Succeeded)*100) / 100
	}
	return s
}

// Report renders the summary for a terminal.
func (s Summary) Report() string {
	var b strings.Builder
	b.WriteString(ui.TitleStyle.Render("BATCH PROCESSING SUMMARY"))
	b.WriteString("\n")
	b.WriteString(ui.KeyValues([][2]string{
		{"Total Tasks", fmt.Sprint(s.Total)},
		{"Successful", ui.SuccessStyle.Render(fmt.Sprint(s.Succeeded))},
		{"Failed", ui.FailureStyle.Render(fmt.Sprint(s.Failed))},
		{"Interrupted", ui.WarningStyle.Render(fmt.Sprint(s.Interrupted))},
		{"Success Rate", fmt.Sprintf("%.1f%%", s.SuccessRate)},
		{"Average Execution Time", fmt.Sprintf("%.2fs", s.AverageTime)},
	}))
	if len(s.Failures) > 0 {
		b.WriteString("\n\n")
		b.WriteString(ui.SectionStyle.Render("Failed Tasks"))
		for _, f := range s.Failures {
			b.WriteString("\n")
			b.WriteString(ui.Line(ui.StatusFail, "Task %d: %s", f.TaskID, f.Task))
			b.WriteString("\n    ")
			b.WriteString(ui.MutedStyle.Render("Error: " + f.Error))
		}
	}
	return b.String()
}
