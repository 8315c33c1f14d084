package availability_tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/freetime/internal/aggregate"
	"github.com/teemow/freetime/internal/interval"
	"github.com/teemow/freetime/internal/period"
	"github.com/teemow/freetime/internal/provider"
	"github.com/teemow/freetime/internal/server"
	"github.com/teemow/freetime/internal/tools/common"
)

const clockLayout = "15:04"

// RegisterAvailabilityTools registers the availability tools with the MCP server.
func RegisterAvailabilityTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	getTool := mcp.NewTool("availability_get",
		mcp.WithDescription("Fetch busy time from every connected calendar and return the free slots "+
			"within work hours for a day or a week. Event titles are only included with details=true; "+
			"private events are always redacted."),
		mcp.WithString("date",
			mcp.Description("Day to show, YYYY-MM-DD (default: today). For the week view, any day of the week."),
		),
		mcp.WithString("view",
			mcp.Description("'day' or 'week' (default: day, or the saved view's setting)"),
		),
		mcp.WithBoolean("details",
			mcp.Description("Include event titles and locations (default: false)"),
		),
		mcp.WithNumber("minGapMinutes",
			mcp.Description("Shortest free slot to report, in minutes (default: the stored preference)"),
		),
		mcp.WithString("savedView",
			mcp.Description("Name or ID of a saved view to start from"),
		),
	)
	s.AddTool(getTool, common.InstrumentedToolHandler("availability_get", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleGetAvailability(ctx, request, sc)
	}))

	return nil
}

type slotResponse struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	Minutes int    `json:"minutes"`
}

type dayResponse struct {
	Date        string         `json:"date"`
	Weekday     string         `json:"weekday"`
	WorkHours   string         `json:"workHours"`
	FreeMinutes int            `json:"freeMinutes"`
	Free        []slotResponse `json:"free"`
}

type detailResponse struct {
	Provider string `json:"provider"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Title    string `json:"title"`
	Location string `json:"location,omitempty"`
	Private  bool   `json:"private,omitempty"`
}

type availabilityResponse struct {
	Period     string            `json:"period"`
	View       string            `json:"view"`
	Generation uint64            `json:"generation"`
	FetchedAt  time.Time         `json:"fetchedAt"`
	Providers  map[string]string `json:"providers"`
	BusyBlocks int               `json:"busyBlocks"`
	Days       []dayResponse     `json:"days"`
	Details    []detailResponse  `json:"details,omitempty"`
	AuthErrors map[string]string `json:"authErrors,omitempty"`
}

func handleGetAvailability(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	q := aggregate.Query{
		Date:      common.StringArg(args, "date"),
		View:      common.StringArg(args, "view"),
		SavedView: common.StringArg(args, "savedView"),
	}
	if details, ok := common.BoolArg(args, "details"); ok {
		q.Details = &details
	}
	minGap, ok, err := common.IntArg(args, "minGapMinutes")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if ok {
		q.MinGapMinutes = &minGap
	}

	req, err := aggregate.BuildRequest(ctx, sc.Prefs(), q, sc.Location())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	snap, err := sc.Engine().Refresh(ctx, req)
	if errors.Is(err, aggregate.ErrSuperseded) {
		return mcp.NewToolResultError("This request was replaced by a newer one or the session was reset. Try again."), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp := newAvailabilityResponse(snap, req, sc.Location())
	for _, st := range sc.Sessions().Status(ctx) {
		resp.Providers[string(st.Source)] = st.State.String()
	}
	return common.JSONResult(resp), nil
}

func newAvailabilityResponse(snap *aggregate.Snapshot, req aggregate.Request, loc *time.Location) availabilityResponse {
	resp := availabilityResponse{
		Period:     snap.Period.String(),
		View:       string(snap.Period.Granularity),
		Generation: snap.Generation,
		FetchedAt:  snap.FetchedAt,
		Providers:  make(map[string]string),
		BusyBlocks: len(snap.Busy),
		Days:       make([]dayResponse, 0, len(snap.Days)),
	}

	for _, day := range snap.Period.Days() {
		key := period.Key(day)
		dr := dayResponse{
			Date:      key,
			Weekday:   day.Weekday().String(),
			WorkHours: req.WorkHours.For(day.Weekday()).String(),
			Free:      []slotResponse{},
		}
		for _, slot := range snap.Free[key] {
			dr.Free = append(dr.Free, newSlot(slot, loc))
			dr.FreeMinutes += int(slot.Duration().Minutes())
		}
		resp.Days = append(resp.Days, dr)
	}

	for _, d := range snap.Details {
		resp.Details = append(resp.Details, detailResponse{
			Provider: string(d.Source),
			Start:    d.Start.In(loc).Format(time.RFC3339),
			End:      d.End.In(loc).Format(time.RFC3339),
			Title:    d.Title,
			Location: d.Location,
			Private:  d.IsPrivate,
		})
	}

	if len(snap.AuthErrors) > 0 {
		resp.AuthErrors = make(map[string]string, len(snap.AuthErrors))
		for src, msg := range snap.AuthErrors {
			resp.AuthErrors[string(src)] = authHint(src, msg)
		}
	}
	return resp
}

func newSlot(iv interval.Interval, loc *time.Location) slotResponse {
	return slotResponse{
		Start:   iv.Start.In(loc).Format(clockLayout),
		End:     iv.End.In(loc).Format(clockLayout),
		Minutes: int(iv.Duration().Minutes()),
	}
}

func authHint(src provider.Source, msg string) string {
	return fmt.Sprintf("%s (run session_connect with providers=%q to sign in again)", msg, src)
}
