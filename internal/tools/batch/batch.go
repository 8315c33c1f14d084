package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Item statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the outcome for one item of a batch.
type Result struct {
	Item   string `json:"item"`
	Status string `json:"status"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// BatchResult aggregates the results of a batch.
type BatchResult struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

// ParseStringOrArray accepts a single string, a comma-separated string, a
// JSON-encoded string array or an array of strings.
func ParseStringOrArray(param any, paramName string) ([]string, error) {
	if param == nil {
		return nil, fmt.Errorf("%s is required", paramName)
	}

	var out []string
	switch v := param.(type) {
	case string:
		var arr []string
		if strings.HasPrefix(strings.TrimSpace(v), "[") && json.Unmarshal([]byte(v), &arr) == nil {
			return ParseStringOrArray(arr, paramName)
		}
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	case []any:
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", paramName, i)
			}
			if str = strings.TrimSpace(str); str == "" {
				return nil, fmt.Errorf("%s[%d] cannot be empty", paramName, i)
			}
			out = append(out, str)
		}
	case []string:
		for _, str := range v {
			if str = strings.TrimSpace(str); str != "" {
				out = append(out, str)
			}
		}
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", paramName)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%s cannot be empty", paramName)
	}
	return out, nil
}

// Process runs fn for each item in order. It stops early when ctx ends and
// reports the remaining items as failed.
func Process(ctx context.Context, items []string, fn func(ctx context.Context, item string) (string, error)) []Result {
	results := make([]Result, 0, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			results = append(results, NewErrorResult(item, err))
			continue
		}
		res, err := fn(ctx, item)
		if err != nil {
			results = append(results, NewErrorResult(item, err))
			continue
		}
		results = append(results, NewSuccessResult(item, res))
	}
	return results
}

// Summarize counts successes and failures.
func Summarize(results []Result) BatchResult {
	br := BatchResult{Total: len(results), Results: results}
	for _, r := range results {
		if r.Status == StatusSuccess {
			br.Successful++
		} else {
			br.Failed++
		}
	}
	return br
}

// FormatResults renders the summary as indented JSON.
func FormatResults(results []Result) string {
	out, _ := json.MarshalIndent(Summarize(results), "", "  ")
	return string(out)
}

// NewSuccessResult creates a success result.
func NewSuccessResult(item, message string) Result {
	return Result{Item: item, Status: StatusSuccess, Result: message}
}

// NewErrorResult creates an error result.
func NewErrorResult(item string, err error) Result {
	return Result{Item: item, Status: StatusError, Error: err.Error()}
}
