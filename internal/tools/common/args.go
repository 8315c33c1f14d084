package common

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/freetime/internal/provider"
	"github.com/teemow/freetime/internal/tools/batch"
)

// StringArg returns a trimmed string argument, or "" when absent.
func StringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// BoolArg returns a boolean argument. ok is false when the key is absent or
// not a boolean. "true" and "false" strings are accepted.
func BoolArg(args map[string]any, key string) (value bool, ok bool) {
	switch v := args[key].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return b, err == nil
	default:
		return false, false
	}
}

// IntArg returns a whole-number argument. JSON numbers arrive as float64.
func IntArg(args map[string]any, key string) (value int, ok bool, err error) {
	raw, present := args[key]
	if !present || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, false, fmt.Errorf("%s must be a whole number", key)
		}
		return int(v), true, nil
	case int:
		return v, true, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false, fmt.Errorf("%s must be a whole number", key)
		}
		return n, true, nil
	default:
		return 0, false, fmt.Errorf("%s must be a number", key)
	}
}

// ProvidersFromArgs parses the "providers" argument. An absent argument
// selects every provider.
func ProvidersFromArgs(args map[string]any) ([]provider.Source, error) {
	raw, ok := args["providers"]
	if !ok || raw == nil {
		return provider.Sources, nil
	}
	names, err := batch.ParseStringOrArray(raw, "providers")
	if err != nil {
		return nil, err
	}

	seen := make(map[provider.Source]bool, len(names))
	var out []provider.Source
	for _, name := range names {
		src, err := provider.ParseSource(name)
		if err != nil {
			return nil, err
		}
		if !seen[src] {
			seen[src] = true
			out = append(out, src)
		}
	}
	return out, nil
}

// JSONResult renders v as indented JSON text.
func JSONResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err))
	}
	return mcp.NewToolResultText(string(out))
}
