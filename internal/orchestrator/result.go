package orchestrator

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Veraticus/finmail/internal/common"
)

// Result is the outcome of a tool call. Exactly one of Value and Error is set.
// It marshals to the payload itself or to {"error": "..."}.
type Result struct {
	Value any
	Err   error
	Error string
}

// OK reports whether the call succeeded.
func (r Result) OK() bool {
	return r.Error == ""
}

// MarshalJSON implements json.Marshaler.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Error != "" {
		return json.Marshal(map[string]string{"error": r.Error})
	}
	return json.Marshal(r.Value)
}

func success(v any) Result {
	return Result{Value: v}
}

// failure logs err and converts it to a plain-language error result.
func failure(message string, err error) Result {
	common.LogError(err, message, nil)
	return Result{Error: fmt.Sprintf("%s: %v", message, err), Err: err}
}

func unavailable(feature string) Result {
	return Result{
		Error: feature + " not available",
		Err:   fmt.Errorf("%w: %s", common.ErrUnavailable, feature),
	}
}

// Arguments are the JSON arguments of a tool invocation.
type Arguments map[string]any

// String returns the argument as a string, or "" when absent.
func (a Arguments) String(key string) string {
	switch v := a[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the argument as an int, or def when absent or not a number.
func (a Arguments) Int(key string, def int) int {
	switch v := a[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Bool returns the argument as a bool, or def when absent.
func (a Arguments) Bool(key string, def bool) bool {
	switch v := a[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Map returns a nested object argument, or nil.
func (a Arguments) Map(key string) map[string]any {
	if m, ok := a[key].(map[string]any); ok {
		return m
	}
	return nil
}
