package resources

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/freetime/internal/aggregate"
	"github.com/teemow/freetime/internal/interval"
	"github.com/teemow/freetime/internal/prefs"
	"github.com/teemow/freetime/internal/provider"
	"github.com/teemow/freetime/internal/server"
	"github.com/teemow/freetime/internal/tools/toolstest"
)

type handler func(context.Context, mcp.ReadResourceRequest, *server.ServerContext) ([]mcp.ResourceContents, error)

func read(t *testing.T, h *toolstest.Harness, fn handler, uri string) (string, error) {
	t.Helper()
	contents, err := fn(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: uri},
	}, h.SC)
	if err != nil {
		return "", err
	}
	require.Len(t, contents, 1)
	text, ok := contents[0].(*mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, uri, text.URI)
	assert.Equal(t, "application/json", text.MIMEType)
	return text.Text, nil
}

func TestRegisterUserResources(t *testing.T) {
	h := toolstest.New(t)
	s := mcpserver.NewMCPServer("test", "1.0.0", mcpserver.WithResourceCapabilities(false, false))
	require.NoError(t, RegisterUserResources(s, h.SC))
}

func TestSessionStatus(t *testing.T) {
	h := toolstest.New(t)
	h.SignIn(t, provider.Microsoft, "ada@contoso.com")

	text, err := read(t, h, handleSessionStatus, SessionStatusURI)
	require.NoError(t, err)

	var data statusData
	require.NoError(t, json.Unmarshal([]byte(text), &data))
	require.Len(t, data.Providers, 2)
	assert.Equal(t, provider.Microsoft, data.Providers[0].Source)
	assert.Equal(t, "ada@contoso.com", data.Providers[0].Username)
}

func TestPreferences(t *testing.T) {
	ctx := context.Background()
	h := toolstest.New(t)
	require.NoError(t, h.Prefs.SetMinGapMinutes(ctx, 20))
	_, err := h.Prefs.SaveView(ctx, prefs.SavedView{Name: "week", View: "week"})
	require.NoError(t, err)

	text, err := read(t, h, handlePreferences, PreferencesURI)
	require.NoError(t, err)

	var data preferencesData
	require.NoError(t, json.Unmarshal([]byte(text), &data))
	assert.Equal(t, 20, data.MinGapMinutes)
	assert.Equal(t, prefs.DefaultWorkHours(), data.WorkHours)
	assert.Equal(t, prefs.DefaultColors(), data.Colors)
	require.Len(t, data.SavedViews, 1)
	assert.Equal(t, "week", data.SavedViews[0].Name)
}

func TestCurrentAvailability(t *testing.T) {
	ctx := context.Background()
	h := toolstest.New(t)

	_, err := read(t, h, handleCurrentAvailability, CurrentAvailabilityURI)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	h.SignIn(t, provider.Google, "ada@example.com")
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, toolstest.Location)
	h.Adapters[provider.Google].Busy = []interval.Interval{
		interval.New(day.Add(10*time.Hour), day.Add(11*time.Hour)),
	}
	snap, err := h.Engine.Refresh(ctx, aggregate.Request{Date: day, WorkHours: prefs.DefaultWorkHours()})
	require.NoError(t, err)

	text, err := read(t, h, handleCurrentAvailability, CurrentAvailabilityURI)
	require.NoError(t, err)

	var got struct {
		Generation uint64                         `json:"generation"`
		Days       []string                       `json:"days"`
		Free       map[string][]interval.Interval `json:"free"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &got))
	assert.Equal(t, snap.Generation, got.Generation)
	assert.Equal(t, []string{"2024-03-04"}, got.Days)
	assert.Len(t, got.Free["2024-03-04"], 2)
}

func TestResourcesRejectAfterShutdown(t *testing.T) {
	h := toolstest.New(t)
	require.NoError(t, h.SC.Shutdown())

	_, err := read(t, h, handleSessionStatus, SessionStatusURI)
	assert.ErrorIs(t, err, server.ErrShutdown)
}
