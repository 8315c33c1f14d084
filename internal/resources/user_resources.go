package resources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/freetime/internal/prefs"
	"github.com/teemow/freetime/internal/server"
	"github.com/teemow/freetime/internal/session"
)

// Resource URIs.
const (
	SessionStatusURI       = "freetime://session/status"
	PreferencesURI         = "freetime://preferences"
	CurrentAvailabilityURI = "freetime://availability/current"
)

// ErrNoSnapshot is returned when no refresh has committed yet.
var ErrNoSnapshot = errors.New("no availability has been fetched yet; call availability_get first")

// RegisterUserResources registers read-only resources describing the
// current session, the stored preferences and the last availability result.
func RegisterUserResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	statusResource := mcp.NewResource(
		SessionStatusURI,
		"Session Status",
		mcp.WithResourceDescription("Sign-in state of each calendar provider"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(statusResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleSessionStatus(ctx, request, sc)
	})

	prefsResource := mcp.NewResource(
		PreferencesURI,
		"Preferences",
		mcp.WithResourceDescription("Work hours, minimum free-slot length, provider colors and saved views"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(prefsResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handlePreferences(ctx, request, sc)
	})

	availabilityResource := mcp.NewResource(
		CurrentAvailabilityURI,
		"Current Availability",
		mcp.WithResourceDescription("The result of the most recent availability refresh"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(availabilityResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleCurrentAvailability(ctx, request, sc)
	})

	return nil
}

type statusData struct {
	Providers []session.ProviderStatus `json:"providers"`
}

func handleSessionStatus(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	if err := sc.Touch(); err != nil {
		return nil, err
	}
	return jsonContents(request.Params.URI, statusData{Providers: sc.Sessions().Status(ctx)})
}

type preferencesData struct {
	WorkHours     prefs.WorkHours   `json:"workHours"`
	MinGapMinutes int               `json:"minGapMinutes"`
	Colors        prefs.Colors      `json:"colors"`
	SavedViews    []prefs.SavedView `json:"savedViews"`
}

func handlePreferences(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	if err := sc.Touch(); err != nil {
		return nil, err
	}
	store := sc.Prefs()
	data := preferencesData{
		WorkHours:     store.WorkHours(ctx),
		MinGapMinutes: store.MinGapMinutes(ctx),
		Colors:        store.Colors(ctx),
		SavedViews:    store.SavedViews(ctx),
	}
	if data.SavedViews == nil {
		data.SavedViews = []prefs.SavedView{}
	}
	return jsonContents(request.Params.URI, data)
}

// handleCurrentAvailability returns the committed snapshot as-is. Event
// details in it were already redacted by the adapters.
func handleCurrentAvailability(_ context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	if err := sc.Touch(); err != nil {
		return nil, err
	}
	snap := sc.Engine().Current()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return jsonContents(request.Params.URI, snap)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource data: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
