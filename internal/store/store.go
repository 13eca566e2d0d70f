// Package store defines the calendar store write contract and the batch
// coordinator that drives it.
package store

import (
	"context"

	appLog "snapcal/internal/log"
	"snapcal/internal/model"
)

// CalendarStore is the narrow contract the pipeline needs from a calendar
// backend: an access gate and a single fallible per-event write. The
// coordinator treats it as an opaque sink and never manages its lifecycle.
type CalendarStore interface {
	// RequestAccess must be called, and must grant, before any write.
	RequestAccess(ctx context.Context) (bool, error)

	// Write persists one event into the named calendar. Each write is
	// independent and all-or-nothing; a failure leaves no partial state.
	Write(ctx context.Context, ev model.MaterializedEvent, calendar string) error
}

// WriteAll writes every event sequentially through the store, best effort:
// a slow or failing write never prevents subsequent items from being
// attempted. Per-item failures are accumulated as (index, error) in input
// order. Once started, the batch runs over its full input; no cancellation
// is threaded through the loop (ctx is only handed to each Write for the
// store's own use).
func WriteAll(ctx context.Context, st CalendarStore, calendar string, events []model.MaterializedEvent) model.BatchOutcome {
	var out model.BatchOutcome
	for i, ev := range events {
		if err := st.Write(ctx, ev, calendar); err != nil {
			out.FailureCount++
			out.Failures = append(out.Failures, model.WriteFailure{Index: i, Err: err})
			appLog.Error("store write failed", err, "index", i, "title", ev.Title)
			continue
		}
		out.SuccessCount++
	}
	appLog.Info("store batch finished",
		"class", out.Classify().String(),
		"succeeded", out.SuccessCount,
		"failed", out.FailureCount,
	)
	return out
}
