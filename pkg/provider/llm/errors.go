package llm

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// HTTP status codes the report pipeline reacts to.
const (
	StatusRateLimited  = 429
	StatusOverloaded   = 529
	StatusUnauthorized = 401
	StatusForbidden    = 403
)

// APIError is a provider failure annotated with the HTTP status returned by
// the backend. Providers wrap SDK errors in it so that callers can classify
// failures without importing every SDK.
type APIError struct {
	// Provider is the short provider name, e.g. "anthropic".
	Provider string

	// StatusCode is the HTTP status of the failed call, or 0 when unknown.
	StatusCode int

	// Err is the underlying SDK error.
	Err error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// StatusCode extracts the HTTP status carried by err. An [*APIError] anywhere
// in the chain wins; otherwise the message is scanned for the well-known
// overload and rate-limit markers some SDKs only expose as text. Returns 0
// when nothing is recognised.
func StatusCode(err error) int {
	if err == nil {
		return 0
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		return apiErr.StatusCode
	}

	msg := strings.ToLower(err.Error())
	codes := statusInText.FindAllString(msg, -1)
	switch {
	case slices.Contains(codes, "529"), strings.Contains(msg, "overloaded"):
		return StatusOverloaded
	case slices.Contains(codes, "429"), strings.Contains(msg, "rate limit"), strings.Contains(msg, "rate_limit"):
		return StatusRateLimited
	case slices.Contains(codes, "401"), strings.Contains(msg, "invalid x-api-key"), strings.Contains(msg, "invalid api key"):
		return StatusUnauthorized
	}
	return 0
}

// statusInText finds status codes standing alone in an error message, so
// token counts such as "1529" do not count.
var statusInText = regexp.MustCompile(`\b(401|429|529)\b`)

// IsTransient reports whether err is an overload or rate-limit failure that
// is worth retrying.
func IsTransient(err error) bool {
	switch StatusCode(err) {
	case StatusRateLimited, StatusOverloaded:
		return true
	}
	return false
}

// IsAuth reports whether err is a credential failure.
func IsAuth(err error) bool {
	switch StatusCode(err) {
	case StatusUnauthorized, StatusForbidden:
		return true
	}
	return false
}
