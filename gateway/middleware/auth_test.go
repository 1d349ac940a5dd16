package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func validClaims(subject string, scope string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   subject,
		"iss":   "rico-test",
		"aud":   "ricod",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"scope": scope,
	}
}

func newTestAuthenticator() *Authenticator {
	return NewAuthenticator(AuthConfig{
		Enabled:       true,
		HMACSecret:    testSecret,
		Issuer:        "rico-test",
		Audience:      "ricod",
		OptionalPaths: []string{"/healthz"},
	}, nil)
}

func serve(auth *Authenticator, token, path string, scopes ...string) (*httptest.ResponseRecorder, common.Address) {
	var seen common.Address
	handler := auth.Middleware(scopes...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = Caller(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res, seen
}

func TestAuthenticatorResolvesCaller(t *testing.T) {
	auth := newTestAuthenticator()
	caller := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	token := signToken(t, validClaims(caller.Hex(), ScopeContribute+" "+ScopeWithdraw))

	res, seen := serve(auth, token, "/v1/contributions", ScopeContribute)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, caller, seen)
}

func TestAuthenticatorRejections(t *testing.T) {
	auth := newTestAuthenticator()
	caller := common.HexToAddress("0xa1").Hex()

	expired := validClaims(caller, ScopeContribute)
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	wrongAudience := validClaims(caller, ScopeContribute)
	wrongAudience["aud"] = "other"
	noExpiry := validClaims(caller, ScopeContribute)
	delete(noExpiry, "exp")

	cases := []struct {
		name   string
		token  string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "not-a-jwt", http.StatusUnauthorized},
		{"expired", signToken(t, expired), http.StatusUnauthorized},
		{"audience", signToken(t, wrongAudience), http.StatusUnauthorized},
		{"no expiry", signToken(t, noExpiry), http.StatusUnauthorized},
		{"bad subject", signToken(t, validClaims("alice", ScopeContribute)), http.StatusUnauthorized},
		{"scope", signToken(t, validClaims(caller, ScopeWithdraw)), http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, _ := serve(auth, tc.token, "/v1/contributions", ScopeContribute)
			require.Equal(t, tc.status, res.Code)
		})
	}
}

func TestAuthenticatorOptionalAndDisabled(t *testing.T) {
	res, _ := serve(newTestAuthenticator(), "", "/healthz")
	require.Equal(t, http.StatusOK, res.Code)

	disabled := NewAuthenticator(AuthConfig{}, nil)
	res, seen := serve(disabled, "", "/v1/contributions", ScopeContribute)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, common.Address{}, seen)

	caller := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	var got common.Address
	handler := disabled.Middleware(ScopeContribute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = Caller(r.Context())
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/contributions", nil)
	req.Header.Set(HeaderCaller, caller.Hex())
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, caller, got)

	// The header is never trusted while tokens are enforced.
	req = httptest.NewRequest(http.MethodPost, "/v1/contributions", nil)
	req.Header.Set(HeaderCaller, caller.Hex())
	rec := httptest.NewRecorder()
	newTestAuthenticator().Middleware(ScopeContribute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExtractScopesFromList(t *testing.T) {
	scopes := extractScopes(jwt.MapClaims{"scope": []interface{}{"a", 1, "b"}}, "")
	require.Equal(t, []string{"a", "b"}, scopes)
}
