package msgraph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/freetime/internal/provider"
	"github.com/teemow/freetime/internal/storage"
)

type fakeIDP struct {
	srv          *httptest.Server
	tokenCalls   int32
	refreshError string
}

func newFakeIDP(t *testing.T) *fakeIDP {
	f := &fakeIDP{}
	mux := http.NewServeMux()
	mux.HandleFunc("/devicecode", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"device_code":      "dev-123",
			"user_code":        "ABCD-EFGH",
			"verification_uri": "https://microsoft.com/devicelogin",
			"expires_in":       900,
			"interval":         1,
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.tokenCalls, 1)
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")

		if r.Form.Get("grant_type") == "refresh_token" && f.refreshError != "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": f.refreshError})
			return
		}

		access := "access-device"
		if r.Form.Get("grant_type") == "refresh_token" {
			access = "access-refreshed"
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  access,
			"token_type":    "Bearer",
			"refresh_token": "refresh-1",
			"expires_in":    3600,
		})
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeIDP) endpoint() *oauth2.Endpoint {
	return &oauth2.Endpoint{
		DeviceAuthURL: f.srv.URL + "/devicecode",
		TokenURL:      f.srv.URL + "/token",
		AuthStyle:     oauth2.AuthStyleInParams,
	}
}

func TestIdentityWithoutAccount(t *testing.T) {
	ctx := context.Background()
	id := NewIdentity(IdentityConfig{ClientID: "client"}, storage.NewMemory())
	require.NoError(t, id.Initialize(ctx))

	_, ok := id.ActiveAccount(ctx)
	assert.False(t, ok)

	_, err := id.AcquireTokenSilent(ctx)
	assert.ErrorIs(t, err, ErrNoAccount)
}

func TestIdentityDeviceFlowCachesToken(t *testing.T) {
	ctx := context.Background()
	idp := newFakeIDP(t)
	cache := storage.NewMemory()

	var prompted *oauth2.DeviceAuthResponse
	id := NewIdentity(IdentityConfig{
		ClientID: "client",
		Endpoint: idp.endpoint(),
		Prompt:   func(r *oauth2.DeviceAuthResponse) { prompted = r },
	}, cache)
	require.NoError(t, id.Initialize(ctx))

	tok, err := id.AcquireTokenInteractive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-device", tok)
	require.NotNil(t, prompted)
	assert.Equal(t, "ABCD-EFGH", prompted.UserCode)

	account, ok := id.ActiveAccount(ctx)
	require.True(t, ok)
	assert.Equal(t, provider.Microsoft, account.Source)

	// A fresh identity over the same session cache restores the account.
	restored := NewIdentity(IdentityConfig{ClientID: "client", Endpoint: idp.endpoint()}, cache)
	require.NoError(t, restored.Initialize(ctx))
	_, ok = restored.ActiveAccount(ctx)
	assert.True(t, ok)

	silent, err := restored.AcquireTokenSilent(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-device", silent)
}

func seedExpired(t *testing.T, cache storage.Store) {
	t.Helper()
	data, err := json.Marshal(cachedToken{Token: &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh-0",
		Expiry:       time.Now().Add(-time.Hour),
	}})
	require.NoError(t, err)
	require.NoError(t, cache.Set(context.Background(), tokenCacheKey, string(data)))
}

func TestIdentitySilentRefresh(t *testing.T) {
	ctx := context.Background()
	idp := newFakeIDP(t)
	cache := storage.NewMemory()
	seedExpired(t, cache)

	id := NewIdentity(IdentityConfig{ClientID: "client", Endpoint: idp.endpoint()}, cache)
	require.NoError(t, id.Initialize(ctx))

	tok, err := id.AcquireTokenSilent(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-refreshed", tok)

	raw, err := cache.Get(ctx, tokenCacheKey)
	require.NoError(t, err)
	assert.Contains(t, raw, "access-refreshed")
}

func TestIdentitySilentRefreshNeedsInteraction(t *testing.T) {
	ctx := context.Background()
	idp := newFakeIDP(t)
	idp.refreshError = "interaction_required"
	cache := storage.NewMemory()
	seedExpired(t, cache)

	id := NewIdentity(IdentityConfig{ClientID: "client", Endpoint: idp.endpoint()}, cache)
	require.NoError(t, id.Initialize(ctx))

	_, err := id.AcquireTokenSilent(ctx)
	require.Error(t, err)
	assert.True(t, provider.IsInteractionRequired(err))
}

func TestIdentityLogoutClearsCache(t *testing.T) {
	ctx := context.Background()
	cache := storage.NewMemory()
	seedExpired(t, cache)

	id := NewIdentity(IdentityConfig{ClientID: "client"}, cache)
	require.NoError(t, id.Initialize(ctx))
	_, ok := id.ActiveAccount(ctx)
	require.True(t, ok)

	require.NoError(t, id.Logout(ctx))
	_, ok = id.ActiveAccount(ctx)
	assert.False(t, ok)
	_, err := cache.Get(ctx, tokenCacheKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIdentityDiscardsMalformedCache(t *testing.T) {
	ctx := context.Background()
	cache := storage.NewMemory()
	require.NoError(t, cache.Set(ctx, tokenCacheKey, "{not json"))

	id := NewIdentity(IdentityConfig{ClientID: "client"}, cache)
	require.NoError(t, id.Initialize(ctx))
	_, ok := id.ActiveAccount(ctx)
	assert.False(t, ok)
}
