// Package extract locates and decodes the JSON event payload embedded in
// free-form vision-model output.
package extract

import (
	"errors"
	"strings"
)

// ErrNoJSONFound means the model output contained no bracket pair that
// could delimit a JSON payload. Fatal to the whole request.
var ErrNoJSONFound = errors.New("no JSON payload found in model output")

// ErrNoEventsFound means the payload was valid JSON but yielded zero
// decodable event records. Distinct from a JSON syntax error in
// user-facing messaging.
var ErrNoEventsFound = errors.New("no calendar events found in model output")

// Extract scans raw model output for an embedded JSON payload and returns
// it as array-shaped JSON text. The model may emit a bare object, an array
// of objects, or prose around either; markdown code fences fall out
// naturally because the fence characters sit outside the bracket span.
//
// The scan is a first/last bracket heuristic, not a tokenizer: it prefers
// the array interpretation when both bracket kinds are present and the
// array opens first, and wraps a bare object into a one-element array so
// downstream always sees array-shaped text. Brackets inside string values
// are not re-balanced; an adversarial payload can yield a truncated or
// over-extended substring, which then fails JSON decoding downstream.
func Extract(raw string) (string, error) {
	arrStart := strings.Index(raw, "[")
	arrEnd := strings.LastIndex(raw, "]")
	objStart := strings.Index(raw, "{")
	objEnd := strings.LastIndex(raw, "}")

	if arrStart >= 0 && arrEnd > arrStart && (objStart < 0 || arrStart < objStart) {
		return raw[arrStart : arrEnd+1], nil
	}
	if objStart >= 0 && objEnd > objStart {
		return "[" + raw[objStart:objEnd+1] + "]", nil
	}
	return "", ErrNoJSONFound
}
