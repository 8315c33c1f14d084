package views_tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/freetime/internal/prefs"
	"github.com/teemow/freetime/internal/server"
	"github.com/teemow/freetime/internal/tools/batch"
	"github.com/teemow/freetime/internal/tools/toolstest"
)

func call(t *testing.T, h *toolstest.Harness, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	handlers := map[string]func(context.Context, mcp.CallToolRequest, *server.ServerContext) (*mcp.CallToolResult, error){
		"views_list":    handleListViews,
		"views_save":    handleSaveView,
		"views_delete":  handleDeleteViews,
		"workhours_get": handleGetWorkHours,
		"workhours_set": handleSetWorkHours,
	}
	handler := handlers[name]
	return toolstest.Call(t, func(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handler(ctx, r, h.SC)
	}, name, args)
}

func decode[T any](t *testing.T, result *mcp.CallToolResult) T {
	t.Helper()
	require.False(t, result.IsError, toolstest.Text(result))
	var v T
	require.NoError(t, json.Unmarshal([]byte(toolstest.Text(result)), &v))
	return v
}

func TestRegisterViewsTools(t *testing.T) {
	h := toolstest.New(t)
	s := mcpserver.NewMCPServer("test", "1.0.0", mcpserver.WithToolCapabilities(true))

	require.NoError(t, RegisterViewsTools(s, h.SC))
	tools := s.ListTools()
	for _, name := range []string{"views_list", "views_save", "views_delete", "workhours_get", "workhours_set"} {
		assert.Contains(t, tools, name)
	}
}

func TestSaveAndListViews(t *testing.T) {
	h := toolstest.New(t)

	assert.Equal(t, "[]", toolstest.Text(call(t, h, "views_list", nil)))

	saved := decode[prefs.SavedView](t, call(t, h, "views_save", map[string]any{
		"name":          "Team week",
		"view":          "week",
		"details":       true,
		"minGapMinutes": float64(45),
		"workStart":     float64(8),
	}))
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "week", saved.View)
	require.NotNil(t, saved.WorkHours)
	assert.Equal(t, prefs.NewHours(8, 17), saved.WorkHours.Uniform)

	require.NotNil(t, saved.MinGapMinutes)
	assert.Equal(t, 45, *saved.MinGapMinutes)

	afternoon := decode[prefs.SavedView](t, call(t, h, "views_save", map[string]any{
		"name":          "Afternoon",
		"date":          "2024-03-05",
		"minGapMinutes": float64(0),
	}))
	require.NotNil(t, afternoon.MinGapMinutes, "an explicit zero gap is kept")
	assert.Zero(t, *afternoon.MinGapMinutes)

	replaced := decode[prefs.SavedView](t, call(t, h, "views_save", map[string]any{"name": "team week"}))
	assert.Equal(t, saved.ID, replaced.ID, "same name replaces the existing view")
	assert.Equal(t, "day", replaced.View)
	assert.Nil(t, replaced.WorkHours)

	views := decode[[]prefs.SavedView](t, call(t, h, "views_list", nil))
	require.Len(t, views, 2)
	assert.Equal(t, "Afternoon", views[0].Name)
	assert.Equal(t, "team week", views[1].Name)
}

func TestSaveView_Invalid(t *testing.T) {
	h := toolstest.New(t)

	for name, args := range map[string]map[string]any{
		"missing name": {"view": "day"},
		"bad view":     {"name": "x", "view": "month"},
		"bad date":     {"name": "x", "date": "tomorrow"},
		"negative gap": {"name": "x", "minGapMinutes": float64(-1)},
		"bad hour":     {"name": "x", "workStart": "nine"},
	} {
		t.Run(name, func(t *testing.T) {
			assert.True(t, call(t, h, "views_save", args).IsError)
		})
	}
	assert.Empty(t, h.Prefs.SavedViews(context.Background()))
}

func TestDeleteViews(t *testing.T) {
	ctx := context.Background()
	h := toolstest.New(t)
	a, err := h.Prefs.SaveView(ctx, prefs.SavedView{Name: "a"})
	require.NoError(t, err)
	_, err = h.Prefs.SaveView(ctx, prefs.SavedView{Name: "b"})
	require.NoError(t, err)

	result := call(t, h, "views_delete", map[string]any{"views": []any{a.ID, "missing"}})
	assert.False(t, result.IsError, "partial success is not an error result")
	br := decode[batch.BatchResult](t, result)
	assert.Equal(t, 1, br.Successful)
	assert.Equal(t, 1, br.Failed)
	assert.Contains(t, br.Results[1].Error, `no saved view named "missing"`)

	assert.True(t, call(t, h, "views_delete", map[string]any{"views": "a"}).IsError)

	decode[batch.BatchResult](t, call(t, h, "views_delete", map[string]any{"views": "B"}))
	assert.Empty(t, h.Prefs.SavedViews(ctx))
}

func TestWorkHours(t *testing.T) {
	ctx := context.Background()
	h := toolstest.New(t)

	resp := decode[workHoursResponse](t, call(t, h, "workhours_get", nil))
	assert.False(t, resp.PerDay)
	assert.Equal(t, "09:00-17:00", resp.Days["Monday"])
	assert.Equal(t, prefs.DefaultMinGapMinutes, resp.MinGapMinutes)

	resp = decode[workHoursResponse](t, call(t, h, "workhours_set", map[string]any{"start": float64(8), "minGapMinutes": float64(15)}))
	assert.Equal(t, "08:00-17:00", resp.Days["Sunday"])
	assert.Equal(t, 15, resp.MinGapMinutes)

	resp = decode[workHoursResponse](t, call(t, h, "workhours_set", map[string]any{"day": "fri", "end": float64(6)}))
	assert.True(t, resp.PerDay)
	assert.Equal(t, "06:00-06:00", resp.Days["Friday"], "an end before the start drags the start")
	assert.Equal(t, "08:00-17:00", resp.Days["Thursday"])
	assert.Equal(t, prefs.NewHours(6, 6), h.Prefs.WorkHours(ctx).For(time.Friday))

	resp = decode[workHoursResponse](t, call(t, h, "workhours_set", map[string]any{"start": float64(10), "end": float64(16)}))
	assert.False(t, resp.PerDay, "setting without a day goes back to one range")
	assert.Equal(t, "10:00-16:00", resp.Days["Friday"])
}

func TestSetWorkHours_Invalid(t *testing.T) {
	h := toolstest.New(t)

	assert.True(t, call(t, h, "workhours_set", nil).IsError)
	assert.True(t, call(t, h, "workhours_set", map[string]any{"start": float64(9), "day": "someday"}).IsError)
	assert.True(t, call(t, h, "workhours_set", map[string]any{"minGapMinutes": float64(-5)}).IsError)
	assert.True(t, call(t, h, "workhours_set", map[string]any{"end": 17.5}).IsError)

	assert.Equal(t, prefs.DefaultWorkHours(), h.Prefs.WorkHours(context.Background()))
}
