// Package functions defines the closed set of tools the conversation model may invoke.
//
// Each tool is a named variant with a validated argument schema. Decode turns the model's
// free-form call into a typed Invocation before anything is executed.
package functions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type Name string

const (
	NameScheduleCallback Name = "schedule_callback"
	NameEndCall          Name = "end_call"
	NameLookupContact    Name = "lookup_contact"
)

var (
	ErrUnknownFunction  = errors.New("functions: unknown function")
	ErrInvalidArguments = errors.New("functions: invalid arguments")
)

// Invocation is implemented only by the variants in this package.
type Invocation interface {
	Name() Name
	isInvocation()
}

// ScheduleCallback asks for a redial after MinutesDelay minutes.
type ScheduleCallback struct {
	MinutesDelay int
}

// EndCall asks the agent to say goodbye and hang up.
type EndCall struct{}

// LookupContact returns what the store knows about the current callee.
type LookupContact struct{}

func (ScheduleCallback) Name() Name { return NameScheduleCallback }
func (EndCall) Name() Name          { return NameEndCall }
func (LookupContact) Name() Name    { return NameLookupContact }

func (ScheduleCallback) isInvocation() {}
func (EndCall) isInvocation()          {}
func (LookupContact) isInvocation()    {}

// Decode validates name and raw JSON arguments and returns the typed variant.
func Decode(name string, rawArgs string) (Invocation, error) {
	args, err := parseArgs(rawArgs)
	if err != nil {
		return nil, err
	}
	switch Name(name) {
	case NameScheduleCallback:
		v, ok := args["minutes_delay"]
		if !ok {
			return nil, fmt.Errorf("%w: minutes_delay is required", ErrInvalidArguments)
		}
		n, err := CoerceMinutes(v)
		if err != nil {
			return nil, err
		}
		return ScheduleCallback{MinutesDelay: n}, nil
	case NameEndCall:
		return EndCall{}, nil
	case NameLookupContact:
		return LookupContact{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, name)
	}
}

// CoerceMinutes accepts a non-negative integer given as a JSON number or a numeric string.
func CoerceMinutes(v any) (int, error) {
	var n int64
	switch t := v.(type) {
	case json.Number:
		i, err := parseIntegral(t.String())
		if err != nil {
			return 0, err
		}
		n = i
	case string:
		i, err := parseIntegral(strings.TrimSpace(t))
		if err != nil {
			return 0, err
		}
		n = i
	case int:
		n = int64(t)
	case int64:
		n = t
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) || math.IsNaN(t) {
			return 0, fmt.Errorf("%w: minutes_delay must be an integer, got %v", ErrInvalidArguments, t)
		}
		n = int64(t)
	default:
		return 0, fmt.Errorf("%w: minutes_delay must be an integer, got %T", ErrInvalidArguments, v)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: minutes_delay must be >= 0, got %d", ErrInvalidArguments, n)
	}
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("%w: minutes_delay too large", ErrInvalidArguments)
	}
	return int(n), nil
}

func parseIntegral(s string) (int64, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: minutes_delay must be an integer, got %q", ErrInvalidArguments, s)
	}
	return int64(f), nil
}

func parseArgs(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
