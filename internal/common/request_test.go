package common

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded first hop", headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, remote: "10.0.0.1:80", want: "203.0.113.7"},
		{name: "bogus forwarded falls through", headers: map[string]string{"X-Forwarded-For": "unknown", "X-Real-IP": "198.51.100.4"}, want: "198.51.100.4"},
		{name: "remote addr", remote: "192.0.2.10:5555", want: "192.0.2.10"},
		{name: "ipv6 remote", remote: "[2001:db8::1]:443", want: "2001:db8::1"},
		{name: "mapped ipv4", headers: map[string]string{"X-Real-IP": "::ffff:192.0.2.1"}, want: "192.0.2.1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tc.want, ClientIP(req))
		})
	}
	require.Empty(t, ClientIP(nil))
}

func TestQueryInt(t *testing.T) {
	n, err := QueryInt(httptest.NewRequest(http.MethodGet, "/compare", nil), "limit", 5)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	n, err = QueryInt(httptest.NewRequest(http.MethodGet, "/compare?limit=0", nil), "limit", 5)
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = QueryInt(httptest.NewRequest(http.MethodGet, "/compare?limit=ten", nil), "limit", 5)
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
}

func TestDigest(t *testing.T) {
	sum := sha256.Sum256([]byte("milk\x00bread"))
	require.Equal(t, hex.EncodeToString(sum[:]), Digest("milk", "bread"))
	require.NotEqual(t, Digest("ab", "c"), Digest("a", "bc"))
	require.Len(t, Digest(), 64)
}
