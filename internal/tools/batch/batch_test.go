package batch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestParseStringOrArray(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    []string
		wantErr bool
	}{
		{name: "single string", input: "google", want: []string{"google"}},
		{name: "comma separated", input: "google, microsoft", want: []string{"google", "microsoft"}},
		{name: "array of strings", input: []any{"standup", "review"}, want: []string{"standup", "review"}},
		{name: "string slice", input: []string{"a", " ", "b"}, want: []string{"a", "b"}},
		{name: "JSON string array", input: `["standup", "1:1 review"]`, want: []string{"standup", "1:1 review"}},
		{name: "bracketed name is not JSON", input: `[team] sync`, want: []string{"[team] sync"}},
		{name: "nil input", input: nil, wantErr: true},
		{name: "empty string", input: "", wantErr: true},
		{name: "only commas", input: " , ,", wantErr: true},
		{name: "empty array", input: []any{}, wantErr: true},
		{name: "JSON empty array", input: `[]`, wantErr: true},
		{name: "array with non-string", input: []any{"a", 1}, wantErr: true},
		{name: "array with empty string", input: []any{"a", ""}, wantErr: true},
		{name: "invalid type", input: 123, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStringOrArray(tt.input, "items")
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStringOrArray() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !stringSliceEqual(got, tt.want) {
				t.Errorf("ParseStringOrArray() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProcess(t *testing.T) {
	fn := func(_ context.Context, item string) (string, error) {
		if item == "b" {
			return "", errors.New("failed to process b")
		}
		return "processed " + item, nil
	}

	results := Process(context.Background(), []string{"a", "b", "c"}, fn)
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}

	want := []Result{
		{Item: "a", Status: StatusSuccess, Result: "processed a"},
		{Item: "b", Status: StatusError, Error: "failed to process b"},
		{Item: "c", Status: StatusSuccess, Result: "processed c"},
	}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("results[%d] = %+v, want %+v", i, results[i], want[i])
		}
	}
}

func TestProcess_StopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	results := Process(ctx, []string{"a", "b"}, func(context.Context, string) (string, error) {
		calls++
		cancel()
		return "ok", nil
	})

	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
	if results[1].Status != StatusError || results[1].Error != context.Canceled.Error() {
		t.Errorf("results[1] = %+v, want canceled error", results[1])
	}
}

func TestFormatResults(t *testing.T) {
	output := FormatResults([]Result{
		NewSuccessResult("a", "ok"),
		NewSuccessResult("b", "ok"),
		NewErrorResult("c", errors.New("boom")),
	})

	var br BatchResult
	if err := json.Unmarshal([]byte(output), &br); err != nil {
		t.Fatalf("Failed to parse output JSON: %v", err)
	}
	if br.Total != 3 || br.Successful != 2 || br.Failed != 1 {
		t.Errorf("summary = %d/%d/%d, want 3/2/1", br.Total, br.Successful, br.Failed)
	}
	if br.Results[2].Error != "boom" {
		t.Errorf("Results[2].Error = %q, want boom", br.Results[2].Error)
	}
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
