package clientip

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"gatekeeper/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestFromHeaders(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			name:    "first forwarded entry wins",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1, 10.0.0.2"},
			want:    "203.0.113.9",
		},
		{
			name: "forwarded beats real ip",
			headers: map[string]string{
				"X-Forwarded-For": "203.0.113.9",
				"X-Real-IP":       "198.51.100.1",
			},
			want: "203.0.113.9",
		},
		{
			name: "invalid forwarded falls through to real ip",
			headers: map[string]string{
				"X-Forwarded-For": "not-an-ip, 203.0.113.9",
				"X-Real-IP":       "198.51.100.1",
			},
			want: "198.51.100.1",
		},
		{
			name:    "cloudflare header last",
			headers: map[string]string{"CF-Connecting-IP": "192.0.2.44"},
			want:    "192.0.2.44",
		},
		{
			name:    "ipv6",
			headers: map[string]string{"X-Forwarded-For": " 2001:db8::1 "},
			want:    "2001:db8::1",
		},
		{
			name:    "ipv4 mapped ipv6 is unmapped",
			headers: map[string]string{"X-Real-IP": "::ffff:192.0.2.10"},
			want:    "192.0.2.10",
		},
		{
			name: "all invalid",
			headers: map[string]string{
				"X-Forwarded-For":  "garbage",
				"X-Real-IP":        "999.1.1.1",
				"CF-Connecting-IP": "",
			},
			want: models.UnknownIP,
		},
		{
			name:    "no headers",
			headers: nil,
			want:    models.UnknownIP,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			assert.Equal(t, tt.want, FromHeaders(h))
		})
	}
}

func TestResolver_ProxyTrust(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:51234"
	req.Header.Set("X-Forwarded-For", "203.0.113.5")

	trusting := NewResolver(models.ClientIPConfig{TrustProxyHeaders: true})
	assert.Equal(t, "203.0.113.5", trusting.Resolve(req))

	direct := NewResolver(models.ClientIPConfig{TrustProxyHeaders: false})
	assert.Equal(t, "192.0.2.1", direct.Resolve(req))

	req.RemoteAddr = "pipe"
	assert.Equal(t, models.UnknownIP, direct.Resolve(req))
}

func TestCanonical(t *testing.T) {
	ip, ok := Canonical(" ::ffff:10.0.0.1 ")
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.1", ip)

	ip, ok = Canonical("2001:DB8::1")
	assert.True(t, ok)
	assert.Equal(t, "2001:db8::1", ip)

	_, ok = Canonical("10.0.0")
	assert.False(t, ok)
}
