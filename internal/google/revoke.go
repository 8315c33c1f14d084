package google

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Revoke invalidates token at the OAuth revocation endpoint (RFC 7009).
// Revoking a refresh token also invalidates the access tokens issued from it.
func Revoke(ctx context.Context, hc *http.Client, revokeURL, token string) error {
	if token == "" {
		return nil
	}
	if hc == nil {
		hc = http.DefaultClient
	}

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating revocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("token revocation failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
