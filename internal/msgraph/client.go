package msgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teemow/freetime/internal/interval"
	"github.com/teemow/freetime/internal/logging"
	"github.com/teemow/freetime/internal/period"
	"github.com/teemow/freetime/internal/provider"
	"github.com/teemow/freetime/internal/retry"
)

// DefaultBaseURL is the Graph v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

const (
	busySelect    = "start,end,showAs"
	detailsSelect = busySelect + ",sensitivity,isCancelled,subject,location"
	pageSize      = "100"
)

// Client reads the signed-in user's calendar view from Microsoft Graph.
// It implements provider.Adapter.
type Client struct {
	baseURL    string
	tokens     provider.TokenSource
	httpClient *http.Client
	policy     *retry.Policy
	loc        *time.Location
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another Graph endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the HTTP client used for Graph requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryPolicy sets the throttling policy.
func WithRetryPolicy(p *retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithLocation sets the zone events are requested and returned in.
func WithLocation(loc *time.Location) Option {
	return func(c *Client) { c.loc = loc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Graph calendar client drawing tokens from tokens.
func NewClient(tokens provider.TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		policy:     retry.DefaultPolicy(),
		loc:        time.Local,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithProvider(c.logger, string(provider.Microsoft))
	return c
}

// Source implements provider.Adapter.
func (c *Client) Source() provider.Source {
	return provider.Microsoft
}

type calendarViewResponse struct {
	Value    []graphEvent `json:"value"`
	NextLink string       `json:"@odata.nextLink"`
}

type graphEvent struct {
	Subject     string        `json:"subject"`
	Start       graphDateTime `json:"start"`
	End         graphDateTime `json:"end"`
	ShowAs      string        `json:"showAs"`
	Sensitivity string        `json:"sensitivity"`
	IsCancelled bool          `json:"isCancelled"`
	Location    struct {
		DisplayName string `json:"displayName"`
	} `json:"location"`
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// IsBusy reports whether a showAs value blocks time. Everything except
// exactly "free" counts as busy, including tentative, oof, workingElsewhere
// and unknown or differently cased values.
func IsBusy(showAs string) bool {
	return showAs != "free"
}

// IsPrivate reports whether a sensitivity value requires redaction. Any
// value other than normal is treated as private.
func IsPrivate(sensitivity string) bool {
	return sensitivity != "" && !strings.EqualFold(sensitivity, "normal")
}

// FetchBusy implements provider.Adapter.
func (c *Client) FetchBusy(ctx context.Context, p period.Period) ([]provider.BusyBlock, error) {
	events, ok, err := c.calendarView(ctx, p, busySelect)
	if err != nil || !ok {
		return nil, err
	}

	blocks := make([]provider.BusyBlock, 0, len(events))
	for _, ev := range events {
		if !IsBusy(ev.ShowAs) {
			continue
		}
		start, end, ok := c.eventTimes(ev)
		if !ok {
			continue
		}
		blocks = append(blocks, provider.BusyBlock{
			Interval: interval.New(start, end),
			Source:   provider.Microsoft,
		})
	}

	c.logger.Debug("busy blocks fetched", "count", len(blocks))
	return blocks, nil
}

// FetchDetails implements provider.Adapter.
func (c *Client) FetchDetails(ctx context.Context, p period.Period) ([]provider.EventDetail, error) {
	events, ok, err := c.calendarView(ctx, p, detailsSelect)
	if err != nil || !ok {
		return nil, err
	}

	details := make([]provider.EventDetail, 0, len(events))
	for _, ev := range events {
		if ev.IsCancelled {
			continue
		}
		start, end, ok := c.eventTimes(ev)
		if !ok {
			continue
		}
		details = append(details, provider.NewEventDetail(
			provider.Microsoft, start, end,
			ev.Subject, ev.Location.DisplayName,
			IsPrivate(ev.Sensitivity),
		))
	}

	c.logger.Debug("event details fetched", "count", len(details))
	return details, nil
}

// calendarView pages through the calendar view. ok is false when no
// account is signed in, in which case no request is made.
func (c *Client) calendarView(ctx context.Context, p period.Period, fields string) ([]graphEvent, bool, error) {
	token, err := c.tokens.AccessToken(ctx, provider.Microsoft)
	if err != nil {
		return nil, false, err
	}
	if token == "" {
		c.logger.Debug("no account signed in, skipping fetch")
		return nil, false, nil
	}

	params := url.Values{
		"startDateTime": {p.Start.Format(time.RFC3339)},
		"endDateTime":   {p.End.Format(time.RFC3339)},
		"$select":       {fields},
		"$orderby":      {"start/dateTime"},
		"$top":          {pageSize},
	}
	requestURL := c.baseURL + "/me/calendarView?" + params.Encode()

	var all []graphEvent
	for requestURL != "" {
		var page calendarViewResponse
		err := c.policy.Do(ctx, func(ctx context.Context) error {
			var err error
			page, err = c.fetchPage(ctx, token, requestURL)
			return err
		})
		if err != nil {
			return nil, false, wrapFetchError(err)
		}
		all = append(all, page.Value...)
		if page.NextLink != "" {
			if err := c.checkNextLink(page.NextLink); err != nil {
				return nil, false, &provider.FetchError{Source: provider.Microsoft, Err: err}
			}
		}
		requestURL = page.NextLink
	}
	return all, true, nil
}

// checkNextLink refuses pagination links that leave the configured Graph
// endpoint, so the bearer token is only ever sent there.
func (c *Client) checkNextLink(link string) error {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("parsing graph base URL: %w", err)
	}
	next, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("parsing graph nextLink: %w", err)
	}
	if !strings.EqualFold(next.Scheme, base.Scheme) || !strings.EqualFold(next.Host, base.Host) {
		return fmt.Errorf("refusing to follow nextLink to %s://%s", next.Scheme, next.Host)
	}
	return nil
}

func (c *Client) fetchPage(ctx context.Context, token, requestURL string) (calendarViewResponse, error) {
	var page calendarViewResponse

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return page, fmt.Errorf("creating graph request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Prefer", fmt.Sprintf("outlook.timezone=%q", c.zoneName()))
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return page, fmt.Errorf("graph request failed: %w", err)
	}
	defer resp.Body.Close()

	if retry.Retryable(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, resp.Body)
		c.logger.Debug("graph request throttled", logging.Status(resp.Status))
		return page, &retry.ThrottleError{Status: resp.StatusCode, Header: resp.Header}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return page, fmt.Errorf("reading graph response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return page, &provider.FetchError{
			Source: provider.Microsoft,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("graph API error: %s", truncate(string(body), 200)),
		}
	}

	if err := json.Unmarshal(body, &page); err != nil {
		return page, fmt.Errorf("parsing graph response: %w", err)
	}
	return page, nil
}

// zoneName is the IANA zone requested via the Prefer header.
func (c *Client) zoneName() string {
	if c.loc == nil || c.loc == time.Local || c.loc.String() == "Local" {
		return "UTC"
	}
	return c.loc.String()
}

func (c *Client) eventTimes(ev graphEvent) (time.Time, time.Time, bool) {
	start, err := c.parseDateTime(ev.Start)
	if err != nil {
		c.logger.Debug("skipping event with unparseable start", logging.Err(err))
		return time.Time{}, time.Time{}, false
	}
	end, err := c.parseDateTime(ev.End)
	if err != nil {
		c.logger.Debug("skipping event with unparseable end", logging.Err(err))
		return time.Time{}, time.Time{}, false
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func (c *Client) parseDateTime(gdt graphDateTime) (time.Time, error) {
	loc := time.UTC
	if c.zoneName() != "UTC" {
		loc = c.location()
	}
	if gdt.TimeZone != "" && gdt.TimeZone != loc.String() {
		if l, err := time.LoadLocation(gdt.TimeZone); err == nil {
			loc = l
		}
	}

	// Graph returns seven fractional digits, but not always.
	for _, layout := range []string{
		"2006-01-02T15:04:05.0000000",
		"2006-01-02T15:04:05",
		time.RFC3339Nano,
	} {
		if t, err := time.ParseInLocation(layout, gdt.DateTime, loc); err == nil {
			return t.In(c.location()), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse datetime %q", gdt.DateTime)
}

func (c *Client) location() *time.Location {
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}

func wrapFetchError(err error) error {
	var throttle *retry.ThrottleError
	if errors.As(err, &throttle) {
		return &provider.FetchError{Source: provider.Microsoft, Status: throttle.Status, Err: err}
	}
	var fetchErr *provider.FetchError
	if errors.As(err, &fetchErr) || provider.IsAuthError(err) {
		return err
	}
	return &provider.FetchError{Source: provider.Microsoft, Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
