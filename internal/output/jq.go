package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/itchyny/gojq"
)

// ApplyJQ runs the jq program query over v and writes each result as JSON,
// one per line. Strings are written raw, matching jq -r for the common case
// of extracting a single field.
func ApplyJQ(w io.Writer, query string, v any) error {
	code, err := compileJQ(query)
	if err != nil {
		return err
	}

	input, err := toJQValue(v)
	if err != nil {
		return err
	}

	iter := code.Run(input)
	for {
		result, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, isErr := result.(error); isErr {
			var halt *gojq.HaltError
			if errors.As(err, &halt) && halt.Value() == nil {
				return nil
			}
			return ErrUsage(fmt.Sprintf("jq: %v", err))
		}
		if err := writeJQResult(w, result); err != nil {
			return err
		}
	}
}

// ValidateJQ reports a syntax error in query before any request is made.
func ValidateJQ(query string) error {
	_, err := compileJQ(query)
	return err
}

func compileJQ(query string) (*gojq.Code, error) {
	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, ErrUsageHint(fmt.Sprintf("invalid --jq filter: %v", err), "See https://jqlang.github.io/jq/manual/")
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, ErrUsage(fmt.Sprintf("invalid --jq filter: %v", err))
	}
	return code, nil
}

// toJQValue converts v into the plain map/slice/float64 shapes gojq accepts.
func toJQValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func writeJQResult(w io.Writer, v any) error {
	if s, ok := v.(string); ok {
		_, err := fmt.Fprintln(w, s)
		return err
	}
	data, err := gojq.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
