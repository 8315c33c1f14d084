// Package provider holds the model shared by the calendar adapters: busy
// blocks, event details, the adapter contract and the error taxonomy.
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/teemow/freetime/internal/interval"
	"github.com/teemow/freetime/internal/period"
)

// Source identifies one of the two calendar providers.
type Source string

const (
	Microsoft Source = "microsoft"
	Google    Source = "google"
)

// Sources lists every supported provider in display order.
var Sources = []Source{Microsoft, Google}

// ParseSource accepts a provider name or a common alias.
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "microsoft", "ms", "outlook", "graph":
		return Microsoft, nil
	case "google", "gcal":
		return Google, nil
	default:
		return "", fmt.Errorf("unknown provider %q (want microsoft or google)", s)
	}
}

// RedactedTitle replaces the title of every private event.
const RedactedTitle = "Private event"

// BusyBlock is a busy interval reported by one provider.
type BusyBlock struct {
	interval.Interval
	Source Source `json:"source"`
}

// EventDetail is the limited per-event view exposed in details mode.
// When IsPrivate is set, Title is RedactedTitle and Location is empty.
type EventDetail struct {
	Source    Source    `json:"source"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Title     string    `json:"title"`
	Location  string    `json:"location,omitempty"`
	IsPrivate bool      `json:"isPrivate"`
}

// NewEventDetail builds a detail record, applying redaction for private events.
// Adapters construct every detail through it so raw titles never escape.
func NewEventDetail(src Source, start, end time.Time, title, location string, private bool) EventDetail {
	d := EventDetail{
		Source:    src,
		Start:     start,
		End:       end,
		Title:     title,
		Location:  location,
		IsPrivate: private,
	}
	if private {
		d.Title = RedactedTitle
		d.Location = ""
	}
	return d
}

// Adapter fetches one provider's calendar data for a period. Both methods
// return an empty result without any network call when no token is available.
type Adapter interface {
	Source() Source
	FetchBusy(ctx context.Context, p period.Period) ([]BusyBlock, error)
	FetchDetails(ctx context.Context, p period.Period) ([]EventDetail, error)
}

// TokenSource hands out access tokens. An empty token with a nil error means
// the provider has no established account.
type TokenSource interface {
	AccessToken(ctx context.Context, src Source) (string, error)
}

// Account is the signed-in identity of one provider.
type Account struct {
	Source   Source `json:"source"`
	Username string `json:"username,omitempty"`
}
