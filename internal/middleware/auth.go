package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gengateway/internal/domain"
)

type principalKey struct{}

// TokenLookup resolves hashed API keys.
type TokenLookup interface {
	GetByKeyHash(ctx context.Context, hash string) (*domain.APIToken, error)
}

// ErrorWriter renders an authentication failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Authenticator accepts either an opaque API key, looked up by its SHA-256
// hash, or an HS256 JWT whose "sub" is the user id and "tid" the token id.
type Authenticator struct {
	Tokens    TokenLookup
	JWTSecret string
	OnError   ErrorWriter
}

// Require rejects requests without valid credentials.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := a.authenticate(r)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
	})
}

func (a *Authenticator) fail(w http.ResponseWriter, r *http.Request, err error) {
	if a.OnError != nil {
		a.OnError(w, r, err)
		return
	}
	http.Error(w, err.Error(), http.StatusUnauthorized)
}

func (a *Authenticator) authenticate(r *http.Request) (domain.Principal, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return domain.Principal{}, domain.NewError(domain.KindUnauthorized, "", "missing authorization")
	}
	scheme, credential, ok := strings.Cut(authHeader, " ")
	credential = strings.TrimSpace(credential)
	if !ok || !strings.EqualFold(scheme, "Bearer") || credential == "" {
		return domain.Principal{}, domain.NewError(domain.KindUnauthorized, "", "invalid authorization")
	}
	if a.JWTSecret != "" && strings.Count(credential, ".") == 2 {
		return a.verifyJWT(credential)
	}
	if a.Tokens == nil {
		return domain.Principal{}, domain.NewError(domain.KindUnauthorized, "", "invalid api key")
	}
	tok, err := a.Tokens.GetByKeyHash(r.Context(), domain.HashAPIKey(credential))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Principal{}, domain.NewError(domain.KindUnauthorized, "", "invalid api key")
		}
		return domain.Principal{}, fmt.Errorf("lookup api key: %w", err)
	}
	return domain.Principal{UserID: tok.UserID, TokenID: tok.ID}, nil
}

func (a *Authenticator) verifyJWT(raw string) (domain.Principal, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return []byte(a.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.Principal{}, domain.WrapError(domain.KindUnauthorized, "", "invalid token", err)
	}
	sub, _ := claims.GetSubject()
	if sub == "" {
		return domain.Principal{}, domain.NewError(domain.KindUnauthorized, "", "token has no subject")
	}
	p := domain.Principal{UserID: sub}
	switch tid := claims["tid"].(type) {
	case float64:
		p.TokenID = int64(tid)
	case string:
		p.TokenID, _ = strconv.ParseInt(tid, 10, 64)
	}
	return p, nil
}

// SignJWT issues an HS256 token for a user and optional token id.
func SignJWT(secret, userID string, tokenID int64, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": time.Now().Unix(),
	}
	if tokenID > 0 {
		claims["tid"] = tokenID
	}
	if ttl != 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func ContextWithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(domain.Principal)
	return p, ok
}
