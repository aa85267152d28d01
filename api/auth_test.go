package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"github.com/linesmerrill/case-portal-api/authority"
	"github.com/linesmerrill/case-portal-api/databases/memdb"
	"github.com/linesmerrill/case-portal-api/models"
)

const testSecret = "test-signing-secret"

func newTestAuth(t *testing.T) (*Auth, *models.User) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		ID: primitive.NewObjectID(),
		Details: models.UserDetails{
			Email:    "det@example.com",
			Password: string(hash),
			Roles:    []string{"detective", "sergeant"},
		},
	}
	store := memdb.New()
	require.NoError(t, store.InsertUser(context.Background(), user))
	return NewAuth(store, testSecret), user
}

func echoPrincipal() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"id": p.UserID, "roles": p.Roles.Strings()})
	})
}

func issue(t *testing.T, a *Auth, email, password string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", nil)
	req.SetBasicAuth(email, password)
	rr := httptest.NewRecorder()
	a.IssueToken(rr, req)
	return rr
}

func TestIssueTokenAndAuthenticate(t *testing.T) {
	a, user := newTestAuth(t)

	rr := issue(t, a, "det@example.com", "hunter22")
	require.Equal(t, http.StatusOK, rr.Code)
	var tok TokenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tok))
	assert.Equal(t, user.ID.Hex(), tok.UserID)
	assert.NotEmpty(t, tok.Token)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cases", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	out := httptest.NewRecorder()
	a.Middleware(echoPrincipal()).ServeHTTP(out, req)

	require.Equal(t, http.StatusOK, out.Code)
	var got struct {
		ID    string   `json:"id"`
		Roles []string `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(out.Body.Bytes(), &got))
	assert.Equal(t, user.ID.Hex(), got.ID)
	assert.Equal(t, []string{"detective", "sergeant"}, got.Roles)
}

func TestIssueTokenRejectsBadCredentials(t *testing.T) {
	a, _ := newTestAuth(t)

	assert.Equal(t, http.StatusUnauthorized, issue(t, a, "det@example.com", "wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, issue(t, a, "nobody@example.com", "hunter22").Code)

	rr := httptest.NewRecorder()
	a.IssueToken(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMiddlewareAcceptsBasicAuth(t *testing.T) {
	a, _ := newTestAuth(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cases", nil)
	req.SetBasicAuth("det@example.com", "hunter22")
	rr := httptest.NewRecorder()

	a.Middleware(echoPrincipal()).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMiddlewareAcceptsQueryToken(t *testing.T) {
	a, user := newTestAuth(t)
	token, _, err := a.SignToken(infoFor(user))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws/events?access_token="+token, nil)
	rr := httptest.NewRecorder()
	a.Middleware(echoPrincipal()).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCachedTokenExpires(t *testing.T) {
	a, user := newTestAuth(t)
	now := time.Now()
	a.Clock = func() time.Time { return now }
	a.TTL = time.Minute
	token, _, err := a.SignToken(infoFor(user))
	require.NoError(t, err)

	call := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cases", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		a.Middleware(echoPrincipal()).ServeHTTP(rr, req)
		return rr.Code
	}
	require.Equal(t, http.StatusOK, call())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, http.StatusUnauthorized, call())
}

func TestMiddlewareRejects(t *testing.T) {
	a, user := newTestAuth(t)

	expired := &Auth{secret: a.secret, TTL: time.Hour, Clock: func() time.Time { return time.Now().Add(-2 * time.Hour) }}
	old, _, err := expired.SignToken(infoFor(user))
	require.NoError(t, err)

	foreign := &Auth{secret: []byte("another-secret"), TTL: time.Hour, Clock: time.Now}
	forged, _, err := foreign.SignToken(infoFor(user))
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID.Hex(), ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"missing": "",
		"expired": "Bearer " + old,
		"forged":  "Bearer " + forged,
		"none":    "Bearer " + none,
		"garbage": "Bearer not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/cases", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rr := httptest.NewRecorder()
			a.Middleware(echoPrincipal()).ServeHTTP(rr, req)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
		})
	}
}

func TestPrincipalFromEmptyContext(t *testing.T) {
	_, ok := PrincipalFrom(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), authority.NewPrincipal("u1", "judge"))
	p, ok := PrincipalFrom(ctx)
	assert.True(t, ok)
	assert.True(t, p.Roles.Has(authority.RoleJudge))
}
