package google

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	oauth "github.com/giantswarm/mcp-oauth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/teemow/freetime/internal/logging"
	"github.com/teemow/freetime/internal/provider"
	"github.com/teemow/freetime/internal/storage"
)

// DefaultRevokeURL is Google's OAuth token revocation endpoint.
const DefaultRevokeURL = "https://oauth2.googleapis.com/revoke"

const tokenKey = "google.token"

// ErrNoAccount is returned by silent acquisition when nobody has signed in.
var ErrNoAccount = errors.New("no google account signed in")

// URLOpener presents the consent URL to the user.
type URLOpener func(authURL string)

// IdentityConfig configures an Identity.
type IdentityConfig struct {
	ClientID     string
	ClientSecret string
	// Endpoint overrides Google's OAuth endpoint.
	Endpoint   *oauth2.Endpoint
	RevokeURL  string
	HTTPClient *http.Client
	// ListenAddr is the loopback address for the redirect. Defaults to 127.0.0.1:0.
	ListenAddr string
	Open       URLOpener
	Logger     *slog.Logger
}

// Identity is the Google sign-in capability used by the session manager.
type Identity struct {
	conf       *oauth2.Config
	revokeURL  string
	httpClient *http.Client
	listenAddr string
	open       URLOpener
	store      storage.Store
	logger     *slog.Logger
}

type storedToken struct {
	Token    *oauth2.Token `json:"token"`
	Username string        `json:"username,omitempty"`
}

// NewIdentity creates a Google identity keeping its token in store, which
// should be a memory-lifetime store.
func NewIdentity(cfg IdentityConfig, store storage.Store) *Identity {
	endpoint := google.Endpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	revokeURL := cfg.RevokeURL
	if revokeURL == "" {
		revokeURL = DefaultRevokeURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	listen := cfg.ListenAddr
	if listen == "" {
		listen = "127.0.0.1:0"
	}
	open := cfg.Open
	if open == nil {
		open = StderrOpener(os.Stderr)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Identity{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       DefaultOAuthScopes,
		},
		revokeURL:  revokeURL,
		httpClient: hc,
		listenAddr: listen,
		open:       open,
		store:      store,
		logger:     logging.WithProvider(logger, string(provider.Google)),
	}
}

// StderrOpener prints the consent URL to w.
func StderrOpener(w io.Writer) URLOpener {
	return func(authURL string) {
		fmt.Fprintf(w, "To sign in to Google, open this URL in your browser:\n\n  %s\n\n", authURL)
	}
}

// Initialize has nothing to restore: Google tokens never outlive the process.
func (i *Identity) Initialize(ctx context.Context) error {
	_, err := i.load(ctx)
	return err
}

// ActiveAccount reports the signed-in account, if any.
func (i *Identity) ActiveAccount(ctx context.Context) (provider.Account, bool) {
	st, err := i.load(ctx)
	if err != nil || st == nil {
		return provider.Account{}, false
	}
	return provider.Account{Source: provider.Google, Username: st.Username}, true
}

// AcquireTokenSilent returns a valid access token, refreshing it when expired.
func (i *Identity) AcquireTokenSilent(ctx context.Context) (string, error) {
	st, err := i.load(ctx)
	if err != nil {
		return "", err
	}
	if st == nil {
		return "", ErrNoAccount
	}

	refreshCtx := context.WithValue(ctx, oauth2.HTTPClient, i.httpClient)
	tok, err := i.conf.TokenSource(refreshCtx, st.Token).Token()
	if err != nil {
		return "", provider.ClassifyOAuthError(err)
	}
	if tok.AccessToken != st.Token.AccessToken {
		if err := i.save(ctx, &storedToken{Token: tok, Username: st.Username}); err != nil {
			return "", err
		}
	}
	return tok.AccessToken, nil
}

// AcquireTokenInteractive runs the authorization code flow with PKCE. It
// listens on a loopback port for the redirect, shows the consent URL and
// waits for the callback or ctx.
func (i *Identity) AcquireTokenInteractive(ctx context.Context) (string, error) {
	ln, err := net.Listen("tcp", i.listenAddr)
	if err != nil {
		return "", fmt.Errorf("listening for oauth redirect: %w", err)
	}

	conf := *i.conf
	conf.RedirectURL = fmt.Sprintf("http://%s/callback", ln.Addr().String())

	state, err := randomState()
	if err != nil {
		ln.Close()
		return "", err
	}
	verifier := oauth2.GenerateVerifier()

	results := make(chan *oauth.CallbackResult, 1)
	srv := &http.Server{
		Handler:           callbackHandler(results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			i.logger.Debug("oauth redirect listener stopped", logging.Err(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	i.open(conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier)))

	var result *oauth.CallbackResult
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case result = <-results:
	}

	if err := result.Err(); err != nil {
		return "", fmt.Errorf("google sign-in failed: %w", err)
	}
	if result.State != state {
		return "", fmt.Errorf("google sign-in failed: state mismatch")
	}

	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, i.httpClient)
	tok, err := conf.Exchange(exchangeCtx, result.Code, oauth2.VerifierOption(verifier))
	if err != nil {
		return "", fmt.Errorf("exchanging authorization code: %w", provider.ClassifyOAuthError(err))
	}

	st := &storedToken{Token: tok, Username: provider.UsernameFromToken(tok)}
	if err := i.save(ctx, st); err != nil {
		return "", err
	}
	i.logger.Info("google account signed in", logging.Account(st.Username))
	return tok.AccessToken, nil
}

// Logout revokes the token at Google, best effort, and forgets it. The
// token is forgotten even when revocation fails; the revocation error is
// still returned so the caller can report it.
func (i *Identity) Logout(ctx context.Context) error {
	st, err := i.load(ctx)
	if clearErr := i.store.Delete(ctx, tokenKey); clearErr != nil && err == nil {
		err = clearErr
	}
	if err != nil || st == nil {
		return err
	}

	token := st.Token.RefreshToken
	if token == "" {
		token = st.Token.AccessToken
	}
	return Revoke(ctx, i.httpClient, i.revokeURL, token)
}

func (i *Identity) load(ctx context.Context) (*storedToken, error) {
	raw, err := i.store.Get(ctx, tokenKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading google token: %w", err)
	}
	var st storedToken
	if err := json.Unmarshal([]byte(raw), &st); err != nil || st.Token == nil {
		_ = i.store.Delete(ctx, tokenKey)
		return nil, nil
	}
	return &st, nil
}

func (i *Identity) save(ctx context.Context, st *storedToken) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshaling google token: %w", err)
	}
	if err := i.store.Set(ctx, tokenKey, string(data)); err != nil {
		return fmt.Errorf("storing google token: %w", err)
	}
	return nil
}

func callbackHandler(results chan<- *oauth.CallbackResult) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		result := oauth.ParseCallbackQuery(
			q.Get("code"),
			q.Get("state"),
			q.Get("error"),
			q.Get("error_description"),
			q.Get("error_uri"),
		)

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if result.Err() != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintln(w, "Sign-in failed. You can close this window.")
		} else {
			fmt.Fprintln(w, "Signed in to Google. You can close this window.")
		}

		select {
		case results <- result:
		default:
		}
	})
	return mux
}

func randomState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
