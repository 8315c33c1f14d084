package session_tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/freetime/internal/aggregate"
	"github.com/teemow/freetime/internal/provider"
	"github.com/teemow/freetime/internal/session"
	"github.com/teemow/freetime/internal/tools/batch"
	"github.com/teemow/freetime/internal/tools/toolstest"
)

func call(t *testing.T, h *toolstest.Harness, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"session_status":     func(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) { return handleStatus(ctx, r, h.SC) },
		"session_connect":    func(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) { return handleConnect(ctx, r, h.SC) },
		"session_disconnect": func(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) { return handleDisconnect(ctx, r, h.SC) },
		"session_panic":      func(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) { return handlePanic(ctx, r, h.SC) },
	}
	return toolstest.Call(t, handlers[name], name, args)
}

func decodeBatch(t *testing.T, result *mcp.CallToolResult) batch.BatchResult {
	t.Helper()
	var br batch.BatchResult
	require.NoError(t, json.Unmarshal([]byte(toolstest.Text(result)), &br))
	return br
}

func TestRegisterSessionTools(t *testing.T) {
	h := toolstest.New(t)
	s := mcpserver.NewMCPServer("test", "1.0.0", mcpserver.WithToolCapabilities(true))

	require.NoError(t, RegisterSessionTools(s, h.SC))
	tools := s.ListTools()
	for _, name := range []string{"session_status", "session_connect", "session_disconnect", "session_panic"} {
		assert.Contains(t, tools, name)
	}
}

func TestStatus(t *testing.T) {
	h := toolstest.New(t)
	h.SignIn(t, provider.Google, "ada@example.com")

	result := call(t, h, "session_status", nil)
	require.False(t, result.IsError)

	var resp struct {
		Providers []struct {
			Provider string `json:"provider"`
			State    string `json:"state"`
			Username string `json:"username"`
		} `json:"providers"`
	}
	require.NoError(t, json.Unmarshal([]byte(toolstest.Text(result)), &resp))
	require.Len(t, resp.Providers, 2)
	assert.Equal(t, "microsoft", resp.Providers[0].Provider)
	assert.Equal(t, "disconnected", resp.Providers[0].State)
	assert.Equal(t, "google", resp.Providers[1].Provider)
	assert.Equal(t, "connected", resp.Providers[1].State)
	assert.Equal(t, "ada@example.com", resp.Providers[1].Username)
}

func TestConnect(t *testing.T) {
	h := toolstest.New(t)
	h.Identities[provider.Google].Interactive = func() (provider.Account, error) {
		return provider.Account{Source: provider.Google, Username: "ada@example.com"}, nil
	}
	h.Identities[provider.Microsoft].Interactive = func() (provider.Account, error) {
		return provider.Account{}, errors.New("device code expired")
	}

	result := call(t, h, "session_connect", nil)
	assert.False(t, result.IsError, "partial success is not an error result")

	br := decodeBatch(t, result)
	assert.Equal(t, 2, br.Total)
	assert.Equal(t, 1, br.Successful)
	assert.Equal(t, batch.StatusError, br.Results[0].Status)
	assert.Contains(t, br.Results[0].Error, "device code expired")
	assert.Equal(t, batch.Result{Item: "google", Status: batch.StatusSuccess, Result: "connected"}, br.Results[1])

	assert.True(t, h.Sessions.IsConnected(provider.Google))
	assert.Equal(t, session.Disconnected, h.Sessions.State(provider.Microsoft))

	br = decodeBatch(t, call(t, h, "session_connect", map[string]any{"providers": "gcal"}))
	assert.Equal(t, "already connected", br.Results[0].Result)
}

func TestConnect_AllFailIsErrorResult(t *testing.T) {
	h := toolstest.New(t)

	result := call(t, h, "session_connect", map[string]any{"providers": []any{"microsoft"}})
	assert.True(t, result.IsError)

	result = call(t, h, "session_connect", map[string]any{"providers": "yahoo"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolstest.Text(result), "unknown provider")
}

func TestDisconnect(t *testing.T) {
	h := toolstest.New(t)
	h.SignIn(t, provider.Google, "ada@example.com")
	h.SignIn(t, provider.Microsoft, "ada@contoso.com")

	assert.True(t, call(t, h, "session_disconnect", nil).IsError, "providers is required")

	br := decodeBatch(t, call(t, h, "session_disconnect", map[string]any{"providers": "google"}))
	assert.Equal(t, 1, br.Successful)
	assert.False(t, h.Sessions.IsConnected(provider.Google))
	assert.True(t, h.Sessions.IsConnected(provider.Microsoft))
	assert.EqualValues(t, 1, h.Identities[provider.Google].Logouts.Load())
}

func TestPanic(t *testing.T) {
	ctx := context.Background()
	h := toolstest.New(t)
	h.SignIn(t, provider.Google, "ada@example.com")
	h.SignIn(t, provider.Microsoft, "ada@contoso.com")
	require.NoError(t, h.Session.Set(ctx, "msal.cache", "secret"))

	_, err := h.Engine.Refresh(ctx, aggregate.Request{Date: time.Date(2024, 3, 4, 0, 0, 0, 0, toolstest.Location)})
	require.NoError(t, err)
	require.NotNil(t, h.Engine.Current())

	assert.True(t, call(t, h, "session_panic", nil).IsError, "confirm is required")
	assert.True(t, call(t, h, "session_panic", map[string]any{"confirm": false}).IsError)
	assert.True(t, h.Sessions.IsConnected(provider.Google), "unconfirmed panic changes nothing")

	result := call(t, h, "session_panic", map[string]any{"confirm": true})
	require.False(t, result.IsError, toolstest.Text(result))

	for _, src := range provider.Sources {
		assert.Equal(t, session.Disconnected, h.Sessions.State(src))
		assert.EqualValues(t, 1, h.Identities[src].Logouts.Load())
	}
	assert.Zero(t, h.Session.Len(), "session storage is wiped")
	assert.Nil(t, h.Engine.Current(), "cached results are dropped")
}
