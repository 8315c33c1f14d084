package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/freetime/internal/interval"
	"github.com/teemow/freetime/internal/logging"
	"github.com/teemow/freetime/internal/period"
	"github.com/teemow/freetime/internal/provider"
	"github.com/teemow/freetime/internal/retry"
)

// PrimaryCalendar is the signed-in user's main calendar.
const PrimaryCalendar = "primary"

const eventFields = "nextPageToken,items(status,summary,location,visibility,start,end)"

// Client reads busy time and event details from Google Calendar.
// It implements provider.Adapter.
type Client struct {
	tokens     provider.TokenSource
	calendarID string
	endpoint   string
	httpClient *http.Client
	policy     *retry.Policy
	loc        *time.Location
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithCalendarID selects a calendar other than the primary one.
func WithCalendarID(id string) Option {
	return func(c *Client) { c.calendarID = id }
}

// WithEndpoint overrides the Calendar API base URL.
func WithEndpoint(u string) Option {
	return func(c *Client) { c.endpoint = u }
}

// WithHTTPClient sets the base HTTP client. The bearer token is layered on top.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryPolicy sets the throttling policy.
func WithRetryPolicy(p *retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithLocation sets the zone used for requests and all-day events.
func WithLocation(loc *time.Location) Option {
	return func(c *Client) { c.loc = loc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Google Calendar adapter drawing tokens from tokens.
func NewClient(tokens provider.TokenSource, opts ...Option) *Client {
	c := &Client{
		tokens:     tokens,
		calendarID: PrimaryCalendar,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		policy:     retry.DefaultPolicy(),
		loc:        time.Local,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.loc == nil {
		c.loc = time.Local
	}
	c.logger = logging.WithProvider(c.logger, string(provider.Google))
	return c
}

// Source implements provider.Adapter.
func (c *Client) Source() provider.Source {
	return provider.Google
}

// service builds a Calendar service authorised with token. ok is false when
// no account is signed in.
func (c *Client) service(ctx context.Context) (*calendar.Service, bool, error) {
	token, err := c.tokens.AccessToken(ctx, provider.Google)
	if err != nil {
		return nil, false, err
	}
	if token == "" {
		c.logger.Debug("no account signed in, skipping fetch")
		return nil, false, nil
	}

	base := c.httpClient
	if base == nil {
		base = http.DefaultClient
	}
	authed := &http.Client{
		Timeout: base.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   base.Transport,
		},
	}

	opts := []option.ClientOption{option.WithHTTPClient(authed)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}

	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	return svc, true, nil
}

// FetchBusy implements provider.Adapter using the freeBusy endpoint.
func (c *Client) FetchBusy(ctx context.Context, p period.Period) ([]provider.BusyBlock, error) {
	svc, ok, err := c.service(ctx)
	if err != nil || !ok {
		return nil, err
	}

	req := &calendar.FreeBusyRequest{
		TimeMin:  p.Start.Format(time.RFC3339),
		TimeMax:  p.End.Format(time.RFC3339),
		TimeZone: c.zoneName(),
		Items:    []*calendar.FreeBusyRequestItem{{Id: c.calendarID}},
	}

	var resp *calendar.FreeBusyResponse
	err = c.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = svc.Freebusy.Query(req).Context(ctx).Do()
		return throttled(err)
	})
	if err != nil {
		return nil, wrapFetchError(err)
	}

	cal, ok := resp.Calendars[c.calendarID]
	if !ok {
		return []provider.BusyBlock{}, nil
	}
	if len(cal.Errors) > 0 {
		return nil, &provider.FetchError{
			Source: provider.Google,
			Err:    fmt.Errorf("freeBusy error for calendar: %s", cal.Errors[0].Reason),
		}
	}

	blocks := make([]provider.BusyBlock, 0, len(cal.Busy))
	for _, busy := range cal.Busy {
		start, err := time.Parse(time.RFC3339, busy.Start)
		if err != nil {
			continue
		}
		end, err := time.Parse(time.RFC3339, busy.End)
		if err != nil {
			continue
		}
		iv := interval.New(start.In(c.loc), end.In(c.loc))
		if !iv.Valid() {
			continue
		}
		blocks = append(blocks, provider.BusyBlock{Interval: iv, Source: provider.Google})
	}

	c.logger.Debug("busy blocks fetched", "count", len(blocks))
	return blocks, nil
}

// FetchDetails implements provider.Adapter by listing single events page by page.
func (c *Client) FetchDetails(ctx context.Context, p period.Period) ([]provider.EventDetail, error) {
	svc, ok, err := c.service(ctx)
	if err != nil || !ok {
		return nil, err
	}

	details := []provider.EventDetail{}
	pageToken := ""
	for {
		call := svc.Events.List(c.calendarID).
			TimeMin(p.Start.Format(time.RFC3339)).
			TimeMax(p.End.Format(time.RFC3339)).
			TimeZone(c.zoneName()).
			SingleEvents(true).
			OrderBy("startTime").
			Fields(googleapi.Field(eventFields))
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		var events *calendar.Events
		err := c.policy.Do(ctx, func(ctx context.Context) error {
			var err error
			events, err = call.Context(ctx).Do()
			return throttled(err)
		})
		if err != nil {
			return nil, wrapFetchError(err)
		}

		for _, ev := range events.Items {
			if d, ok := c.toEventDetail(ev); ok {
				details = append(details, d)
			}
		}

		if events.NextPageToken == "" {
			break
		}
		pageToken = events.NextPageToken
	}

	c.logger.Debug("event details fetched", "count", len(details))
	return details, nil
}

func (c *Client) zoneName() string {
	if c.loc == nil || c.loc == time.Local || c.loc.String() == "Local" {
		return "UTC"
	}
	return c.loc.String()
}

// throttled converts a retryable Google API error into a retry.ThrottleError.
func throttled(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && retry.Retryable(gerr.Code) {
		return &retry.ThrottleError{Status: gerr.Code, Header: gerr.Header}
	}
	return err
}

func wrapFetchError(err error) error {
	var throttle *retry.ThrottleError
	if errors.As(err, &throttle) {
		return &provider.FetchError{Source: provider.Google, Status: throttle.Status, Err: err}
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &provider.FetchError{Source: provider.Google, Status: gerr.Code, Err: err}
	}
	return &provider.FetchError{Source: provider.Google, Err: err}
}
