package gateway

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- safeEqual tests ---

func TestSafeEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"match", "secret", "secret", true},
		{"mismatch", "secret", "secreT", false},
		{"different lengths", "secret", "secret-longer", false},
		{"both empty", "", "", true},
		{"one empty", "secret", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, safeEqual(tt.a, tt.b))
		})
	}
}

// --- Authorize tests ---

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name   string
		server string
		client *ConnectAuth
		ok     bool
		reason string
	}{
		{"success", "tok", &ConnectAuth{Token: "tok"}, true, ""},
		{"mismatch", "tok", &ConnectAuth{Token: "nope"}, false, "token_mismatch"},
		{"empty token", "tok", &ConnectAuth{}, false, "token required"},
		{"nil credentials", "tok", nil, false, "token required"},
		{"server not configured", "", &ConnectAuth{Token: "tok"}, false, "server token not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Authorize(tt.server, tt.client)
			assert.Equal(t, tt.ok, res.OK)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
}

// --- authRateLimiter tests ---

func TestAuthRateLimiter_AllowInitial(t *testing.T) {
	rl := newAuthRateLimiter()
	assert.True(t, rl.allow("192.168.1.1:12345"))
}

func TestAuthRateLimiter_BlockAfterMaxFailures(t *testing.T) {
	rl := newAuthRateLimiter()
	for range authRateMaxFails - 1 {
		rl.recordFailure("192.168.1.1:12345")
	}
	assert.True(t, rl.allow("192.168.1.1:12345"))

	// the port does not matter
	rl.recordFailure("192.168.1.1:54321")
	assert.False(t, rl.allow("192.168.1.1:12345"))
	assert.True(t, rl.allow("10.0.0.2:12345"))
}

func TestAuthRateLimiter_IPWithoutPort(t *testing.T) {
	rl := newAuthRateLimiter()
	for range authRateMaxFails {
		rl.recordFailure("192.168.1.1")
	}
	assert.False(t, rl.allow("192.168.1.1"))
}

func TestAuthRateLimiter_FailuresExpire(t *testing.T) {
	rl := newAuthRateLimiter()
	now := time.Now()
	rl.now = func() time.Time { return now }

	for range authRateMaxFails {
		rl.recordFailure("192.168.1.1:1")
	}
	require.False(t, rl.allow("192.168.1.1:1"))

	now = now.Add(authRateWindow + time.Second)
	assert.True(t, rl.allow("192.168.1.1:1"))
}

func TestAuthRateLimiter_Cleanup(t *testing.T) {
	rl := newAuthRateLimiter()
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.recordFailure("192.168.1.1:1")
	rl.recordFailure("192.168.1.2:1")
	now = now.Add(authRateWindow / 2)
	rl.recordFailure("192.168.1.2:1")
	require.Equal(t, 2, rl.tracked())

	now = now.Add(authRateWindow/2 + time.Second)
	rl.cleanup()
	assert.Equal(t, 1, rl.tracked())
}

// --- checkWebSocketOrigin tests ---

func originRequest(origin string) *http.Request {
	r, _ := http.NewRequest("GET", "/ws", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

func TestCheckWebSocketOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", nil, "", true},
		{"empty allowed list", nil, "http://evil.com", false},
		{"wildcard", []string{"*"}, "http://any.com", true},
		{"specific match", []string{"http://chat.example.com"}, "http://chat.example.com", true},
		{"specific no match", []string{"http://chat.example.com"}, "http://evil.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checkWebSocketOrigin(tt.allowed)(originRequest(tt.origin)))
		})
	}
}
