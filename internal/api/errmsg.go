package api

import (
	"encoding/json"
	"sort"
)

// messageExtractor tries to pull a user-facing message out of one known
// server error shape. Each extractor is independent: a body that fails to
// decode for one shape is still offered to the next.
type messageExtractor func(body []byte) (string, bool)

// messageExtractors are tried in priority order.
var messageExtractors = []messageExtractor{
	topLevelMessage,
	firstErrorDetail,
	firstFieldError,
}

// ParseErrorMessage returns the first message any known error shape yields.
func ParseErrorMessage(body []byte) (string, bool) {
	if len(body) == 0 {
		return "", false
	}
	for _, extract := range messageExtractors {
		if msg, ok := extract(body); ok {
			return msg, true
		}
	}
	return "", false
}

// {"message": "..."}
func topLevelMessage(body []byte) (string, bool) {
	var shape struct {
		Message *string `json:"message"`
	}
	if err := json.Unmarshal(body, &shape); err != nil || shape.Message == nil {
		return "", false
	}
	return *shape.Message, true
}

// {"errors": [{"detail": "..."}]}
func firstErrorDetail(body []byte) (string, bool) {
	var shape struct {
		Errors []struct {
			Detail *string `json:"detail"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &shape); err != nil || len(shape.Errors) == 0 {
		return "", false
	}
	if d := shape.Errors[0].Detail; d != nil {
		return *d, true
	}
	return "", false
}

// {"errors": {"field": ["...", ...]}}
//
// Map order carries no meaning on the wire; keys are sorted so the same body
// always yields the same message.
func firstFieldError(body []byte) (string, bool) {
	var shape struct {
		Errors map[string][]string `json:"errors"`
	}
	if err := json.Unmarshal(body, &shape); err != nil || len(shape.Errors) == 0 {
		return "", false
	}
	fields := make([]string, 0, len(shape.Errors))
	for field := range shape.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	msgs := shape.Errors[fields[0]]
	if len(msgs) == 0 {
		return "", false
	}
	return msgs[0], true
}
