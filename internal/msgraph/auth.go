package msgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/teemow/freetime/internal/logging"
	"github.com/teemow/freetime/internal/provider"
	"github.com/teemow/freetime/internal/storage"
)

// DefaultTenant accepts both work and personal Microsoft accounts.
const DefaultTenant = "common"

// Scopes requested for calendar read access and offline refresh.
var Scopes = []string{"Calendars.Read", "offline_access", "openid", "profile"}

const tokenCacheKey = "msgraph.token"

// ErrNoAccount is returned by silent acquisition when nobody has signed in.
var ErrNoAccount = errors.New("no microsoft account signed in")

// cachedToken is the session-store record of a signed-in account.
type cachedToken struct {
	Token    *oauth2.Token `json:"token"`
	Username string        `json:"username,omitempty"`
}

// DevicePrompt shows the device code instructions to the user.
type DevicePrompt func(resp *oauth2.DeviceAuthResponse)

// Identity signs in to Microsoft with the OAuth device authorization grant.
// Its token cache lives in a session-lifetime store, so it survives process
// restarts until the user logs out of the desktop session or panics.
type Identity struct {
	conf   *oauth2.Config
	cache  storage.Store
	prompt DevicePrompt
	logger *slog.Logger

	mu     sync.Mutex
	cached *cachedToken
}

// IdentityConfig configures an Identity.
type IdentityConfig struct {
	ClientID string
	TenantID string
	// Endpoint overrides the Microsoft identity platform endpoint.
	Endpoint *oauth2.Endpoint
	Prompt   DevicePrompt
	Logger   *slog.Logger
}

// NewIdentity creates a Microsoft identity that caches tokens in cache.
func NewIdentity(cfg IdentityConfig, cache storage.Store) *Identity {
	tenant := cfg.TenantID
	if tenant == "" {
		tenant = DefaultTenant
	}
	endpoint := microsoft.AzureADEndpoint(tenant)
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}

	prompt := cfg.Prompt
	if prompt == nil {
		prompt = StderrPrompt(os.Stderr)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Identity{
		conf: &oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: endpoint,
			Scopes:   Scopes,
		},
		cache:  cache,
		prompt: prompt,
		logger: logging.WithProvider(logger, string(provider.Microsoft)),
	}
}

// StderrPrompt prints the device code message to w.
func StderrPrompt(w io.Writer) DevicePrompt {
	return func(resp *oauth2.DeviceAuthResponse) {
		fmt.Fprintf(w, "To sign in to Microsoft, open %s and enter the code %s\n",
			resp.VerificationURI, resp.UserCode)
	}
}

// Initialize loads a cached account from the session store, if any.
func (i *Identity) Initialize(ctx context.Context) error {
	raw, err := i.cache.Get(ctx, tokenCacheKey)
	if errors.Is(err, storage.ErrNotFound) {
		i.setCached(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading microsoft token cache: %w", err)
	}

	var ct cachedToken
	if err := json.Unmarshal([]byte(raw), &ct); err != nil || ct.Token == nil {
		i.logger.Warn("discarding malformed microsoft token cache", logging.Err(err))
		_ = i.cache.Delete(ctx, tokenCacheKey)
		i.setCached(nil)
		return nil
	}

	i.setCached(&ct)
	i.logger.Debug("restored microsoft account from session cache")
	return nil
}

// ActiveAccount reports the signed-in account, if any.
func (i *Identity) ActiveAccount(_ context.Context) (provider.Account, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cached == nil {
		return provider.Account{}, false
	}
	return provider.Account{Source: provider.Microsoft, Username: i.cached.Username}, true
}

// AcquireTokenSilent returns a valid access token, refreshing it with the
// cached refresh token when it has expired. It never prompts.
func (i *Identity) AcquireTokenSilent(ctx context.Context) (string, error) {
	i.mu.Lock()
	ct := i.cached
	i.mu.Unlock()
	if ct == nil {
		return "", ErrNoAccount
	}

	tok, err := i.conf.TokenSource(ctx, ct.Token).Token()
	if err != nil {
		return "", provider.ClassifyOAuthError(err)
	}

	if tok.AccessToken != ct.Token.AccessToken {
		username := ct.Username
		if u := provider.UsernameFromToken(tok); u != "" {
			username = u
		}
		if err := i.store(ctx, &cachedToken{Token: tok, Username: username}); err != nil {
			i.logger.Warn("failed to cache refreshed token", logging.Err(err))
		}
	}
	return tok.AccessToken, nil
}

// AcquireTokenInteractive runs the device code flow: it shows the code to
// the user and polls until they complete sign-in or ctx ends.
func (i *Identity) AcquireTokenInteractive(ctx context.Context) (string, error) {
	da, err := i.conf.DeviceAuth(ctx)
	if err != nil {
		return "", fmt.Errorf("requesting device code: %w", provider.ClassifyOAuthError(err))
	}
	i.prompt(da)

	tok, err := i.conf.DeviceAccessToken(ctx, da)
	if err != nil {
		return "", fmt.Errorf("waiting for device sign-in: %w", provider.ClassifyOAuthError(err))
	}

	ct := &cachedToken{Token: tok, Username: provider.UsernameFromToken(tok)}
	if err := i.store(ctx, ct); err != nil {
		i.logger.Warn("failed to cache microsoft token", logging.Err(err))
	}
	i.logger.Info("microsoft account signed in", logging.Account(ct.Username))
	return tok.AccessToken, nil
}

// Logout forgets the account and removes it from the session store.
// Microsoft offers no token revocation endpoint for public clients.
func (i *Identity) Logout(ctx context.Context) error {
	i.setCached(nil)
	if err := i.cache.Delete(ctx, tokenCacheKey); err != nil {
		return fmt.Errorf("clearing microsoft token cache: %w", err)
	}
	return nil
}

func (i *Identity) setCached(ct *cachedToken) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cached = ct
}

func (i *Identity) store(ctx context.Context, ct *cachedToken) error {
	i.setCached(ct)
	data, err := json.Marshal(ct)
	if err != nil {
		return fmt.Errorf("marshaling token cache: %w", err)
	}
	return i.cache.Set(ctx, tokenCacheKey, string(data))
}
