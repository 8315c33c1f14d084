package provider

import (
	"errors"
	"fmt"

	oauth "github.com/giantswarm/mcp-oauth"
	"golang.org/x/oauth2"
)

// FetchError is a provider request that failed with a non-retryable status,
// or a retryable one whose retries ran out.
type FetchError struct {
	Source Source
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s fetch failed: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("%s fetch failed (status %d)", e.Source, e.Status)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// AuthError means a token could not be obtained, silently or interactively.
// It keeps that provider's data absent without failing the other provider.
type AuthError struct {
	Source Source
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s sign-in required: %v", e.Source, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err carries an *AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// ClassifyOAuthError turns an OAuth error response into the typed error
// mcp-oauth uses, so callers can tell "needs interaction" apart from other
// failures with IsInteractionRequired. The original error stays in the chain.
func ClassifyOAuthError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.ErrorCode == "" {
		return err
	}
	if parsed := oauth.ParseOAuthError(re.ErrorCode, re.ErrorDescription); parsed != nil {
		return errors.Join(parsed, err)
	}
	return err
}

// IsInteractionRequired reports whether err says the identity provider
// needs the user before it will issue a token.
func IsInteractionRequired(err error) bool {
	if err == nil {
		return false
	}
	if oauth.IsSilentAuthError(err) {
		return true
	}
	var re *oauth2.RetrieveError
	return errors.As(err, &re) && re.ErrorCode == "invalid_grant"
}
