// Package pipeline orchestrates the text-to-calendar-event flow: model
// inference, payload extraction, record decoding and materialization.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"snapcal/internal/event"
	"snapcal/internal/extract"
	appLog "snapcal/internal/log"
	"snapcal/internal/model"
	"snapcal/internal/vision"
)

// Pipeline wires the stateless stages together. It is safe for concurrent
// use: every stage is a pure transform over its inputs.
type Pipeline struct {
	describer   vision.Describer
	instruction string
	loc         *time.Location
	policy      event.Policy
}

// Result is one pipeline run. Dropped holds per-record failures (missing
// title, unparsable start) that did not abort the run; Events holds
// everything that survived.
type Result struct {
	Events  []model.MaterializedEvent
	Dropped []error
	RawText string
}

// New builds a Pipeline. instruction empty means the built-in prompt; loc
// nil means time.Local.
func New(describer vision.Describer, instruction string, loc *time.Location, policy event.Policy) *Pipeline {
	if loc == nil {
		loc = time.Local
	}
	return &Pipeline{
		describer:   describer,
		instruction: instruction,
		loc:         loc,
		policy:      policy,
	}
}

// Run sends one image through model inference and then the text pipeline.
func (p *Pipeline) Run(ctx context.Context, image []byte, mimeType string) (Result, error) {
	text, err := p.describer.Describe(ctx, p.instruction, image, mimeType)
	if err != nil {
		return Result{}, fmt.Errorf("model inference failed: %w", err)
	}
	return p.FromText(text)
}

// FromText runs the text-to-event stages over raw model output. Errors
// follow the request-level taxonomy: extract.ErrNoJSONFound, a wrapped
// JSON syntax error, or extract.ErrNoEventsFound when nothing decodable
// and materializable remains. Per-record failures land in Result.Dropped
// and are reported in aggregate, never per item.
func (p *Pipeline) FromText(text string) (Result, error) {
	res := Result{RawText: text}

	payload, err := extract.Extract(text)
	if err != nil {
		return res, err
	}

	decoded, err := extract.Decode(payload)
	if err != nil {
		return res, err
	}

	records := make([]model.EventRecord, 0, len(decoded))
	for _, d := range decoded {
		if d.Err != nil {
			res.Dropped = append(res.Dropped, d.Err)
			continue
		}
		records = append(records, d.Record)
	}

	events, errs := event.MaterializeAll(records, p.loc, p.policy)
	res.Events = events
	res.Dropped = append(res.Dropped, errs...)

	if len(res.Events) == 0 {
		return res, extract.ErrNoEventsFound
	}

	appLog.Info("pipeline run complete",
		"events", len(res.Events),
		"dropped", len(res.Dropped),
	)
	return res, nil
}
