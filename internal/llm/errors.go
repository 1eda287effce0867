package llm

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// ProviderError is returned when a model provider fails.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP-like status code (401, 429, 500, etc.)
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// RateLimitExceededError is returned by a Guard once every attempt has been
// rejected with a rate-limit error.
type RateLimitExceededError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("%s: rate limit exceeded after %d attempts", e.Provider, e.Attempts)
}

func (e *RateLimitExceededError) Unwrap() error { return e.Err }

// TokenLimitExceededError reports a request larger than the provider's
// context window. Limit is 0 when the provider did not state one.
type TokenLimitExceededError struct {
	Provider string
	Limit    int
	Err      error
}

func (e *TokenLimitExceededError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("%s: token limit exceeded (limit %d)", e.Provider, e.Limit)
	}
	return fmt.Sprintf("%s: token limit exceeded", e.Provider)
}

func (e *TokenLimitExceededError) Unwrap() error { return e.Err }

var rateLimitMarkers = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"resource_exhausted",
	"resource exhausted",
	"quota",
}

var tokenLimitMarkers = []string{
	"context length",
	"context_length_exceeded",
	"maximum context",
	"prompt is too long",
	"too many tokens",
	"token limit",
	"tokens exceeds",
	"maximum number of tokens",
}

// Checked in order; the first match wins.
var tokenLimitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`maximum context length is (\d+)`),
	regexp.MustCompile(`tokens allowed \((\d+)\)`),
	regexp.MustCompile(`> (\d+) maximum`),
	regexp.MustCompile(`limit of (\d+)`),
	regexp.MustCompile(`maximum of (\d+)`),
}

// bareTokenCount is the last resort. Counts the caller asked for are not
// the ceiling and are skipped.
var bareTokenCount = regexp.MustCompile(`(?i)(requested\s+)?(\d+) tokens`)

// newProviderError builds a ProviderError from a status code and message.
func newProviderError(provider string, code int, msg string, err error) *ProviderError {
	if msg == "" && code > 0 {
		msg = http.StatusText(code)
	}
	return &ProviderError{Provider: provider, Message: msg, Code: code, Err: err}
}

func containsAny(s string, markers []string) bool {
	s = strings.ToLower(s)
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// IsRateLimit reports whether err is a provider rate-limit rejection.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Code == http.StatusTooManyRequests {
		return true
	}
	return containsAny(err.Error(), rateLimitMarkers)
}

// IsTokenLimit reports whether err says the request exceeded the context window.
func IsTokenLimit(err error) bool {
	if err == nil {
		return false
	}
	var tl *TokenLimitExceededError
	if errors.As(err, &tl) {
		return true
	}
	return containsAny(err.Error(), tokenLimitMarkers)
}

// ExtractTokenLimit pulls the provider's stated token ceiling out of an
// error message. Returns 0 when none is present.
func ExtractTokenLimit(msg string) int {
	for _, re := range tokenLimitPatterns {
		if m := re.FindStringSubmatch(msg); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n
			}
		}
	}
	for _, m := range bareTokenCount.FindAllStringSubmatch(msg, -1) {
		if m[1] != "" {
			continue
		}
		if n, err := strconv.Atoi(m[2]); err == nil {
			return n
		}
	}
	return 0
}
