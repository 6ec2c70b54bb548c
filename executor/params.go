// Package executor
package executor

import (
	"fmt"
)

// Proposal params arrive as decoded JSON, so numbers are float64 and
// everything needs checking before it reaches a chain call.

func stringParam(params map[string]interface{}, key string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing param %q", key)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("param %q must be a non-empty string", key)
	}
	return s, nil
}

func optionalStringParam(params map[string]interface{}, key, fallback string) string {
	raw, ok := params[key]
	if !ok {
		return fallback
	}
	if s, ok := raw.(string); ok && s != "" {
		return s
	}
	return fallback
}

func intParam(params map[string]interface{}, key string, fallback int) (int, error) {
	raw, ok := params[key]
	if !ok {
		return fallback, nil
	}
	switch v := raw.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	}
	return 0, fmt.Errorf("param %q must be a number", key)
}

func uintParam(params map[string]interface{}, key string) (uint64, error) {
	raw, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("missing param %q", key)
	}
	switch v := raw.(type) {
	case float64:
		if v < 0 {
			return 0, fmt.Errorf("param %q must be non-negative", key)
		}
		return uint64(v), nil
	case int:
		if v < 0 {
			return 0, fmt.Errorf("param %q must be non-negative", key)
		}
		return uint64(v), nil
	case int64:
		if v < 0 {
			return 0, fmt.Errorf("param %q must be non-negative", key)
		}
		return uint64(v), nil
	case uint64:
		return v, nil
	}
	return 0, fmt.Errorf("param %q must be a number", key)
}

func boolParam(params map[string]interface{}, key string, fallback bool) bool {
	raw, ok := params[key]
	if !ok {
		return fallback
	}
	if b, ok := raw.(bool); ok {
		return b
	}
	return fallback
}
