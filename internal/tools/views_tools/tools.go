package views_tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/freetime/internal/prefs"
	"github.com/teemow/freetime/internal/server"
	"github.com/teemow/freetime/internal/tools/batch"
	"github.com/teemow/freetime/internal/tools/common"
)

// RegisterViewsTools registers saved-view and work-hours tools with the MCP server.
func RegisterViewsTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if err := registerSavedViewTools(s, sc); err != nil {
		return fmt.Errorf("failed to register saved view tools: %w", err)
	}
	if err := registerWorkHoursTools(s, sc); err != nil {
		return fmt.Errorf("failed to register work hours tools: %w", err)
	}
	return nil
}

func registerSavedViewTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	listTool := mcp.NewTool("views_list",
		mcp.WithDescription("List saved views, ordered by name"),
	)
	s.AddTool(listTool, common.InstrumentedToolHandler("views_list", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListViews(ctx, request, sc)
	}))

	saveTool := mcp.NewTool("views_save",
		mcp.WithDescription("Save a named view. Saving under an existing name replaces that view."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Name of the view"),
		),
		mcp.WithString("date",
			mcp.Description("Fixed date YYYY-MM-DD. Leave empty to always show today."),
		),
		mcp.WithString("view",
			mcp.Description("'day' or 'week' (default: day)"),
		),
		mcp.WithBoolean("details",
			mcp.Description("Include event titles (default: false)"),
		),
		mcp.WithNumber("minGapMinutes",
			mcp.Description("Shortest free slot to report, in minutes (default: the stored preference)"),
		),
		mcp.WithNumber("workStart",
			mcp.Description("Work start hour 0-23 for this view only"),
		),
		mcp.WithNumber("workEnd",
			mcp.Description("Work end hour 0-23 for this view only"),
		),
	)
	s.AddTool(saveTool, common.InstrumentedToolHandler("views_save", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleSaveView(ctx, request, sc)
	}))

	deleteTool := mcp.NewTool("views_delete",
		mcp.WithDescription("Delete one or more saved views by name or ID"),
		mcp.WithString("views",
			mcp.Required(),
			mcp.Description("View name or ID, or a list of them"),
		),
	)
	s.AddTool(deleteTool, common.InstrumentedToolHandler("views_delete", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleDeleteViews(ctx, request, sc)
	}))

	return nil
}

func registerWorkHoursTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	getTool := mcp.NewTool("workhours_get",
		mcp.WithDescription("Show the work hours and minimum free-slot length used for availability"),
	)
	s.AddTool(getTool, common.InstrumentedToolHandler("workhours_get", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleGetWorkHours(ctx, request, sc)
	}))

	setTool := mcp.NewTool("workhours_set",
		mcp.WithDescription("Change work hours. Without 'day' the range applies to every weekday; "+
			"with 'day' only that weekday changes. A bound that crosses the other drags it along."),
		mcp.WithNumber("start",
			mcp.Description("Start hour 0-23"),
		),
		mcp.WithNumber("end",
			mcp.Description("End hour 0-23"),
		),
		mcp.WithString("day",
			mcp.Description("Weekday to change, e.g. 'friday'"),
		),
		mcp.WithNumber("minGapMinutes",
			mcp.Description("Shortest free slot to report, in minutes"),
		),
	)
	s.AddTool(setTool, common.InstrumentedToolHandler("workhours_set", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleSetWorkHours(ctx, request, sc)
	}))

	return nil
}

func handleListViews(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	views := sc.Prefs().SavedViews(ctx)
	if views == nil {
		views = []prefs.SavedView{}
	}
	return common.JSONResult(views), nil
}

func handleSaveView(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	v := prefs.SavedView{
		Name: common.StringArg(args, "name"),
		Date: common.StringArg(args, "date"),
		View: common.StringArg(args, "view"),
	}
	if v.Name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}
	v.Details, _ = common.BoolArg(args, "details")

	minGap, hasMinGap, err := common.IntArg(args, "minGapMinutes")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if hasMinGap {
		v.MinGapMinutes = &minGap
	}

	start, hasStart, err := common.IntArg(args, "workStart")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	end, hasEnd, err := common.IntArg(args, "workEnd")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if hasStart || hasEnd {
		current := sc.Prefs().WorkHours(ctx).Uniform
		if !hasStart {
			start = current.Start
		}
		if !hasEnd {
			end = current.End
		}
		wh := prefs.UniformWorkHours(start, end)
		v.WorkHours = &wh
	}

	saved, err := sc.Prefs().SaveView(ctx, v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return common.JSONResult(saved), nil
}

func handleDeleteViews(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	refs, err := batch.ParseStringOrArray(request.GetArguments()["views"], "views")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	results := batch.Process(ctx, refs, func(ctx context.Context, ref string) (string, error) {
		if err := sc.Prefs().DeleteView(ctx, ref); err != nil {
			if errors.Is(err, prefs.ErrViewNotFound) {
				return "", fmt.Errorf("no saved view named %q", ref)
			}
			return "", err
		}
		return "deleted", nil
	})
	summary := batch.Summarize(results)
	result := common.JSONResult(summary)
	result.IsError = summary.Successful == 0
	return result, nil
}

type workHoursResponse struct {
	Days          map[string]string `json:"days"`
	PerDay        bool              `json:"perDay"`
	MinGapMinutes int               `json:"minGapMinutes"`
}

func newWorkHoursResponse(wh prefs.WorkHours, minGap int) workHoursResponse {
	resp := workHoursResponse{
		Days:          make(map[string]string, 7),
		PerDay:        wh.PerDay,
		MinGapMinutes: minGap,
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		resp.Days[d.String()] = wh.For(d).String()
	}
	return resp
}

func handleGetWorkHours(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	return common.JSONResult(newWorkHoursResponse(sc.Prefs().WorkHours(ctx), sc.Prefs().MinGapMinutes(ctx))), nil
}

func handleSetWorkHours(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	start, hasStart, err := common.IntArg(args, "start")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	end, hasEnd, err := common.IntArg(args, "end")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	minGap, hasMinGap, err := common.IntArg(args, "minGapMinutes")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !hasStart && !hasEnd && !hasMinGap {
		return mcp.NewToolResultError("nothing to change: pass start, end or minGapMinutes"), nil
	}

	store := sc.Prefs()
	if hasStart || hasEnd {
		wh := store.WorkHours(ctx)
		if dayName := common.StringArg(args, "day"); dayName != "" {
			day, err := prefs.ParseWeekday(dayName)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			wh = wh.SetDay(day, applyBounds(wh.For(day), start, hasStart, end, hasEnd))
		} else {
			h := applyBounds(wh.Uniform, start, hasStart, end, hasEnd)
			wh = prefs.UniformWorkHours(h.Start, h.End)
		}
		if err := store.SetWorkHours(ctx, wh); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	if hasMinGap {
		if err := store.SetMinGapMinutes(ctx, minGap); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	return handleGetWorkHours(ctx, request, sc)
}

// applyBounds sets whichever bounds were given. A bound that crosses the
// other drags it along.
func applyBounds(h prefs.Hours, start int, hasStart bool, end int, hasEnd bool) prefs.Hours {
	if hasStart {
		h = h.SetStart(start)
	}
	if hasEnd {
		h = h.SetEnd(end)
	}
	return h
}
