package session_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/freetime/internal/provider"
	"github.com/teemow/freetime/internal/server"
	"github.com/teemow/freetime/internal/session"
	"github.com/teemow/freetime/internal/tools/batch"
	"github.com/teemow/freetime/internal/tools/common"
)

// RegisterSessionTools registers the session lifecycle tools with the MCP server.
func RegisterSessionTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	statusTool := mcp.NewTool("session_status",
		mcp.WithDescription("Show the sign-in state of each calendar provider"),
	)
	s.AddTool(statusTool, common.InstrumentedToolHandler("session_status", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleStatus(ctx, request, sc)
	}))

	connectTool := mcp.NewTool("session_connect",
		mcp.WithDescription("Sign in to calendar providers. Microsoft prints a device code on the server's "+
			"stderr; Google opens a browser consent page. Providers that are already connected are left alone."),
		mcp.WithString("providers",
			mcp.Description("Provider name or list: 'microsoft', 'google' or both comma-separated (default: all)"),
		),
	)
	s.AddTool(connectTool, common.InstrumentedToolHandler("session_connect", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleConnect(ctx, request, sc)
	}))

	disconnectTool := mcp.NewTool("session_disconnect",
		mcp.WithDescription("Sign out of calendar providers and forget their tokens"),
		mcp.WithString("providers",
			mcp.Required(),
			mcp.Description("Provider name or list: 'microsoft', 'google' or both comma-separated"),
		),
	)
	s.AddTool(disconnectTool, common.InstrumentedToolHandler("session_disconnect", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleDisconnect(ctx, request, sc)
	}))

	panicTool := mcp.NewTool("session_panic",
		mcp.WithDescription("Immediately sign out of every provider, revoke tokens where supported, "+
			"and wipe all session data and cached results. Preferences and saved views are kept."),
		mcp.WithBoolean("confirm",
			mcp.Required(),
			mcp.Description("Must be true"),
		),
	)
	s.AddTool(panicTool, common.InstrumentedToolHandler("session_panic", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handlePanic(ctx, request, sc)
	}))

	return nil
}

type statusResponse struct {
	Providers []session.ProviderStatus `json:"providers"`
}

func handleStatus(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	return common.JSONResult(statusResponse{Providers: sc.Sessions().Status(ctx)}), nil
}

func handleConnect(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	sources, err := common.ProvidersFromArgs(request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	results := batch.Process(ctx, names(sources), func(ctx context.Context, name string) (string, error) {
		src := provider.Source(name)
		if sc.Sessions().IsConnected(src) {
			return "already connected", nil
		}
		if err := sc.Sessions().Connect(ctx, src); err != nil {
			return "", err
		}
		return "connected", nil
	})
	return batchResult(results), nil
}

func handleDisconnect(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	if _, ok := args["providers"]; !ok {
		return mcp.NewToolResultError("providers is required"), nil
	}
	sources, err := common.ProvidersFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	results := batch.Process(ctx, names(sources), func(ctx context.Context, name string) (string, error) {
		if err := sc.Sessions().Disconnect(ctx, provider.Source(name)); err != nil {
			return "", err
		}
		return "disconnected", nil
	})
	return batchResult(results), nil
}

func handlePanic(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if confirm, ok := common.BoolArg(request.GetArguments(), "confirm"); !ok || !confirm {
		return mcp.NewToolResultError("confirm must be true to wipe the session"), nil
	}

	if err := sc.Sessions().Panic(ctx, session.ReasonUser); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session was only partly cleared: %v", err)), nil
	}
	return mcp.NewToolResultText("Signed out of all providers and cleared session data."), nil
}

func names(sources []provider.Source) []string {
	out := make([]string, len(sources))
	for i, src := range sources {
		out[i] = string(src)
	}
	return out
}

func batchResult(results []batch.Result) *mcp.CallToolResult {
	summary := batch.Summarize(results)
	result := common.JSONResult(summary)
	if summary.Failed > 0 && summary.Successful == 0 {
		result.IsError = true
	}
	return result
}
