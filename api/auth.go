package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shaj13/go-guardian/auth"
	"github.com/shaj13/go-guardian/auth/strategies/basic"
	"github.com/shaj13/go-guardian/auth/strategies/bearer"
	"github.com/shaj13/go-guardian/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/linesmerrill/case-portal-api/authority"
	"github.com/linesmerrill/case-portal-api/models"
)

// DefaultTokenTTL is how long an issued token stays valid
const DefaultTokenTTL = 12 * time.Hour

// strategies re-run at most this often for the same credentials
const authCacheTTL = 5 * time.Minute

// expiryExtension carries a bearer token's exp (unix seconds) through the cache
const expiryExtension = "exp"

// UserFinder looks users up by login email
type UserFinder interface {
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Claims are the JWT claims issued by POST /auth/token. Subject is the user id.
type Claims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenResponse is returned by IssueToken
type TokenResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"_id"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Auth authenticates requests with basic credentials or a signed bearer token
type Auth struct {
	users  UserFinder
	secret []byte
	TTL    time.Duration
	Clock  func() time.Time

	authenticator auth.Authenticator
}

// NewAuth sets up the go-guardian strategies. secret signs and verifies HS256 tokens.
func NewAuth(users UserFinder, secret string) *Auth {
	a := &Auth{
		users:  users,
		secret: []byte(secret),
		TTL:    DefaultTokenTTL,
		Clock:  time.Now,
	}
	basicCache := store.NewFIFO(context.Background(), authCacheTTL)
	tokenCache := store.NewFIFO(context.Background(), authCacheTTL)

	a.authenticator = auth.New()
	a.authenticator.EnableStrategy(basic.StrategyKey, basic.New(a.ValidateUser, basicCache))
	a.authenticator.EnableStrategy(bearer.CachedStrategyKey, bearer.New(a.ValidateToken, tokenCache))
	return a
}

// ValidateUser checks an email and password against the stored bcrypt hash
func (a *Auth) ValidateUser(ctx context.Context, r *http.Request, email, password string) (auth.Info, error) {
	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	user, err := a.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("no matching email found")
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Details.Password), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}
	return auth.NewDefaultUser(user.Details.Email, user.ID.Hex(), user.Details.Roles, nil), nil
}

// ValidateToken verifies a bearer JWT and turns its claims into auth info
func (a *Auth) ValidateToken(ctx context.Context, r *http.Request, tokenString string) (auth.Info, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.Clock), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("invalid token: missing subject")
	}
	exp := strconv.FormatInt(claims.ExpiresAt.Unix(), 10)
	return auth.NewDefaultUser(claims.Email, claims.Subject, claims.Roles, map[string][]string{
		expiryExtension: {exp},
	}), nil
}

// expired reports whether info came from a bearer token that has since lapsed.
// Cached entries skip ValidateToken, so the middleware checks this on every request.
func (a *Auth) expired(info auth.Info) bool {
	vals := info.Extensions()[expiryExtension]
	if len(vals) == 0 {
		return false
	}
	exp, err := strconv.ParseInt(vals[0], 10, 64)
	if err != nil {
		return true
	}
	return !a.Clock().Before(time.Unix(exp, 0))
}

// SignToken issues a JWT for info valid for the configured TTL
func (a *Auth) SignToken(info auth.Info) (string, time.Time, error) {
	now := a.Clock()
	expiresAt := now.Add(a.TTL)
	claims := Claims{
		Email: info.UserName(),
		Roles: info.Groups(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   info.ID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Middleware authenticates the request and stores the caller's principal in its context
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// browsers cannot set headers on a websocket handshake
		if r.Header.Get("Authorization") == "" {
			if t := r.URL.Query().Get("access_token"); t != "" {
				r.Header.Set("Authorization", "Bearer "+t)
			}
		}
		info, err := a.authenticator.Authenticate(r)
		if err == nil && a.expired(info) {
			err = errors.New("token expired")
		}
		if err != nil {
			zap.S().Infow("unauthorized", "url", r.URL.Path, "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "unauthorized"}`))
			return
		}
		zap.S().Debugw("user authenticated", "userId", info.ID())
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principalOf(info))))
	})
}

// IssueToken exchanges basic credentials for a bearer token
func (a *Auth) IssueToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, _, ok := r.BasicAuth(); !ok {
		http.Error(w, "basic auth failed", http.StatusUnauthorized)
		return
	}
	info, err := a.authenticator.Strategy(basic.StrategyKey).Authenticate(r.Context(), r)
	if err != nil {
		zap.S().Infow("token request rejected", "error", err)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, expiresAt, err := a.SignToken(info)
	if err != nil {
		zap.S().Errorw("failed to sign token", "error", err)
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	b, err := json.Marshal(TokenResponse{Token: token, UserID: info.ID(), ExpiresAt: expiresAt})
	if err != nil {
		http.Error(w, "failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Write(b)
}

func principalOf(info auth.Info) authority.Principal {
	return authority.NewPrincipal(info.ID(), info.Groups()...)
}
