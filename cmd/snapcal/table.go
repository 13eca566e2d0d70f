package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"snapcal/internal/model"
	"snapcal/internal/pipeline"
)

const (
	tableTimeLayout = "2006-01-02 15:04"
	tableDateLayout = "2006-01-02"
	maxCellWidth    = 40
)

// printEventsTable renders extracted events as an aligned terminal table.
// Column widths are computed with display widths, not byte or rune counts,
// so CJK titles from photographed flyers line up.
func printEventsTable(w io.Writer, res pipeline.Result) {
	headers := []string{"TITLE", "START", "END", "LOCATION"}
	rows := make([][]string, 0, len(res.Events))
	for _, ev := range res.Events {
		rows = append(rows, []string{
			truncateCell(ev.Title),
			formatInstant(ev.Start, ev.AllDay),
			formatInstant(ev.End, ev.AllDay),
			truncateCell(ev.Location),
		})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	printRow(w, headers, widths)
	sep := make([]string, len(widths))
	for i, width := range widths {
		sep[i] = strings.Repeat("-", width)
	}
	printRow(w, sep, widths)
	for _, row := range rows {
		printRow(w, row, widths)
	}

	if len(res.Dropped) > 0 {
		fmt.Fprintf(w, "\n%d record(s) dropped:\n", len(res.Dropped))
		for _, err := range res.Dropped {
			fmt.Fprintf(w, "  - %v\n", err)
		}
	}
}

func printRow(w io.Writer, cells []string, widths []int) {
	padded := make([]string, len(cells))
	for i, cell := range cells {
		padded[i] = runewidth.FillRight(cell, widths[i])
	}
	fmt.Fprintln(w, strings.TrimRight(strings.Join(padded, "  "), " "))
}

func truncateCell(s string) string {
	return runewidth.Truncate(s, maxCellWidth, "…")
}

func formatInstant(t time.Time, allDay bool) string {
	if allDay {
		return t.Format(tableDateLayout)
	}
	return t.Format(tableTimeLayout)
}

// printOutcome reports the batch write result with its three-way
// classification.
func printOutcome(w io.Writer, outcome model.BatchOutcome) {
	switch outcome.Classify() {
	case model.BatchAllSucceeded:
		fmt.Fprintf(w, "wrote %d event(s) to the calendar store\n", outcome.SuccessCount)
	case model.BatchPartialSuccess:
		fmt.Fprintf(w, "wrote %d event(s), %d failed:\n", outcome.SuccessCount, outcome.FailureCount)
	default:
		fmt.Fprintf(w, "no events written; all %d attempt(s) failed:\n", outcome.FailureCount)
	}
	for _, f := range outcome.Failures {
		fmt.Fprintf(w, "  - event %d: %v\n", f.Index, f.Err)
	}
}
