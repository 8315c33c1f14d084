package google

import (
	calendar "google.golang.org/api/calendar/v3"
)

// DefaultOAuthScopes are the scopes requested at sign-in: identity for the
// account label and read-only calendar access.
var DefaultOAuthScopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	calendar.CalendarReadonlyScope,
}
