package instrumentation

import (
	"strings"

	"github.com/teemow/freetime/internal/provider"
)

// ProviderLabel maps a source onto the fixed provider label set so metrics
// never carry free-form values.
func ProviderLabel(src provider.Source) string {
	switch src {
	case provider.Microsoft, provider.Google:
		return string(src)
	default:
		return "unknown"
	}
}

// ExtractUserDomain extracts the domain part from an account username.
// Used instead of the full address when detailed labels are off.
//
//	ExtractUserDomain("jane@example.com")  // "example.com"
//	ExtractUserDomain("invalid")           // "unknown"
func ExtractUserDomain(username string) string {
	if username == "" {
		return "unknown"
	}

	parts := strings.Split(username, "@")
	if len(parts) == 2 && parts[1] != "" {
		return strings.ToLower(parts[1])
	}

	return "unknown"
}
