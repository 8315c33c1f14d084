// Package toolstest builds a fully wired server context over in-memory
// fakes so MCP tool handlers can be exercised without network access.
package toolstest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/freetime/internal/aggregate"
	"github.com/teemow/freetime/internal/interval"
	"github.com/teemow/freetime/internal/period"
	"github.com/teemow/freetime/internal/prefs"
	"github.com/teemow/freetime/internal/provider"
	"github.com/teemow/freetime/internal/server"
	"github.com/teemow/freetime/internal/session"
	"github.com/teemow/freetime/internal/storage"
)

// ErrNoAccount is returned by the fake identity when nobody signed in.
var ErrNoAccount = errors.New("no account signed in")

// Location is the fixed zone every harness runs in.
var Location = time.FixedZone("CET", 3600)

// Identity is a scriptable session.Identity.
type Identity struct {
	mu          sync.Mutex
	Account     *provider.Account
	SilentErr   error
	Interactive func() (provider.Account, error)
	Logouts     atomic.Int32
}

func (f *Identity) Initialize(context.Context) error { return nil }

func (f *Identity) ActiveAccount(context.Context) (provider.Account, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Account == nil {
		return provider.Account{}, false
	}
	return *f.Account, true
}

func (f *Identity) AcquireTokenSilent(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Account == nil {
		return "", ErrNoAccount
	}
	if f.SilentErr != nil {
		return "", f.SilentErr
	}
	return "token-" + f.Account.Username, nil
}

func (f *Identity) AcquireTokenInteractive(context.Context) (string, error) {
	if f.Interactive == nil {
		return "", ErrNoAccount
	}
	account, err := f.Interactive()
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.Account = &account
	f.SilentErr = nil
	f.mu.Unlock()
	return "token-" + account.Username, nil
}

func (f *Identity) Logout(context.Context) error {
	f.Logouts.Add(1)
	f.mu.Lock()
	f.Account = nil
	f.mu.Unlock()
	return nil
}

// Adapter serves canned busy blocks and details for the connected account.
type Adapter struct {
	Src     provider.Source
	Tokens  provider.TokenSource
	Busy    []interval.Interval
	Details []provider.EventDetail
	Err     error
}

func (a *Adapter) Source() provider.Source { return a.Src }

func (a *Adapter) FetchBusy(ctx context.Context, p period.Period) ([]provider.BusyBlock, error) {
	ok, err := a.authorize(ctx)
	if !ok || err != nil {
		return nil, err
	}
	var out []provider.BusyBlock
	for _, iv := range a.Busy {
		if iv.End.After(p.Start) && iv.Start.Before(p.End) {
			out = append(out, provider.BusyBlock{Interval: iv, Source: a.Src})
		}
	}
	return out, nil
}

func (a *Adapter) FetchDetails(ctx context.Context, p period.Period) ([]provider.EventDetail, error) {
	ok, err := a.authorize(ctx)
	if !ok || err != nil {
		return nil, err
	}
	var out []provider.EventDetail
	for _, d := range a.Details {
		if d.End.After(p.Start) && d.Start.Before(p.End) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (a *Adapter) authorize(ctx context.Context) (bool, error) {
	token, err := a.Tokens.AccessToken(ctx, a.Src)
	if err != nil {
		return false, err
	}
	if token == "" {
		return false, nil
	}
	return true, a.Err
}

// Harness bundles the wired components.
type Harness struct {
	SC         *server.ServerContext
	Sessions   *session.Manager
	Engine     *aggregate.Orchestrator
	Prefs      *prefs.Store
	Identities map[provider.Source]*Identity
	Adapters   map[provider.Source]*Adapter
	Session    *storage.Memory
}

// New wires a session manager, an orchestrator and a preferences store
// over fakes for both providers. Neither provider is signed in.
func New(t *testing.T, opts ...server.Option) *Harness {
	t.Helper()

	sessionStore := storage.NewMemory()
	mgr := session.NewManager(session.WithStores(sessionStore))

	h := &Harness{
		Sessions:   mgr,
		Prefs:      prefs.New(storage.NewMemory(), nil),
		Identities: make(map[provider.Source]*Identity),
		Adapters:   make(map[provider.Source]*Adapter),
		Session:    sessionStore,
	}

	var adapters []provider.Adapter
	for _, src := range provider.Sources {
		id := &Identity{}
		mgr.Register(src, id)
		a := &Adapter{Src: src, Tokens: mgr}
		h.Identities[src] = id
		h.Adapters[src] = a
		adapters = append(adapters, a)
	}

	h.Engine = aggregate.New(adapters, aggregate.WithLocation(Location))
	mgr.OnReset(h.Engine.Reset)

	opts = append([]server.Option{server.WithLocation(Location)}, opts...)
	h.SC = server.NewServerContext(context.Background(), mgr, h.Engine, h.Prefs, opts...)
	t.Cleanup(func() { _ = h.SC.Shutdown() })
	return h
}

// SignIn marks a provider's account as already established.
func (h *Harness) SignIn(t *testing.T, src provider.Source, username string) {
	t.Helper()
	id := h.Identities[src]
	id.mu.Lock()
	id.Account = &provider.Account{Source: src, Username: username}
	id.mu.Unlock()
	if err := h.Sessions.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize sessions: %v", err)
	}
}

// Call invokes a handler with the given arguments.
func Call(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	result, err := handler(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		t.Fatalf("%s returned error: %v", name, err)
	}
	if result == nil {
		t.Fatalf("%s returned nil result", name)
	}
	return result
}

// Text returns the concatenated text content of a result.
func Text(result *mcp.CallToolResult) string {
	var out string
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			out += tc.Text
		}
	}
	return out
}
