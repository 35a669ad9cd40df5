package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webdiary-server/internal/observability"
)

func newTestGuard() *Guard {
	return NewGuard(NewCodec(testSecret, time.Hour), observability.NewLoggerTo(io.Discard))
}

func guardedRequest(t *testing.T, guard *Guard, required Role, authHeader string) (*httptest.ResponseRecorder, *Claims) {
	t.Helper()

	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := ClaimsFromContext(r.Context()); ok {
			seen = &claims
		}
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/computers", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	guard.Require(required, next).ServeHTTP(rec, req)
	return rec, seen
}

func TestGuardAllowsSufficientRole(t *testing.T) {
	t.Parallel()

	guard := newTestGuard()
	token, _, err := guard.codec.Mint(7, "alice", RolePrivileged)
	require.NoError(t, err)

	rec, claims := guardedRequest(t, guard, RoleViewer, "Bearer "+token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, claims, "claims should reach the wrapped handler")
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, RolePrivileged, claims.Role)
}

func TestGuardRejectsInsufficientRole(t *testing.T) {
	t.Parallel()

	guard := newTestGuard()
	token, _, err := guard.codec.Mint(7, "alice", RoleViewer)
	require.NoError(t, err)

	rec, claims := guardedRequest(t, guard, RolePrivileged, "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Nil(t, claims)
}

func TestGuardRejectsExpiredTokenAsUnauthorized(t *testing.T) {
	t.Parallel()

	guard := newTestGuard()
	minter := NewCodec(testSecret, time.Hour)
	minter.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	token, _, err := minter.Mint(7, "alice", RoleAdmin)
	require.NoError(t, err)

	// Expiry is a token failure, not a role failure.
	rec, _ := guardedRequest(t, guard, RoleViewer, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuardRejectsBadHeaders(t *testing.T) {
	t.Parallel()

	guard := newTestGuard()

	for name, header := range map[string]string{
		"missing":      "",
		"no scheme":    "some-token-value",
		"wrong scheme": "Basic YWxpY2U6cGFzcw==",
		"empty token":  "Bearer ",
		"garbage":      "Bearer not.a.token",
	} {
		rec, _ := guardedRequest(t, guard, RoleViewer, header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "case %q", name)
	}
}

func TestGuardAcceptsLowercaseScheme(t *testing.T) {
	t.Parallel()

	guard := newTestGuard()
	token, _, err := guard.codec.Mint(7, "alice", RoleViewer)
	require.NoError(t, err)

	rec, _ := guardedRequest(t, guard, RoleViewer, "bearer "+token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestClaimsFromContextAbsent(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := ClaimsFromContext(req.Context())
	assert.False(t, ok)
}
