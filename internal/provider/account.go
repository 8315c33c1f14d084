package provider

import (
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// UsernameFromToken extracts a display name from the id_token that
// accompanies an OAuth token response. The id_token came straight from the
// token endpoint over TLS, so its signature is not re-verified here. It
// returns "" when no usable claim is present.
func UsernameFromToken(tok *oauth2.Token) string {
	if tok == nil {
		return ""
	}
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return ""
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return ""
	}
	for _, key := range []string{"preferred_username", "email", "upn", "name"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
