package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gengateway/internal/domain"
)

type stubTokens map[string]*domain.APIToken

func (s stubTokens) GetByKeyHash(_ context.Context, hash string) (*domain.APIToken, error) {
	if tok, ok := s[hash]; ok {
		return tok, nil
	}
	return nil, domain.ErrNotFound
}

func serveAuth(a *Authenticator, header string) (*httptest.ResponseRecorder, domain.Principal) {
	var got domain.Principal
	h := a.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, got
}

func TestAuthenticatorAPIKey(t *testing.T) {
	a := &Authenticator{Tokens: stubTokens{
		domain.HashAPIKey("sk-live"): {ID: 42, UserID: "user_1"},
	}}
	rec, p := serveAuth(a, "Bearer sk-live")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if p.TokenID != 42 || p.UserID != "user_1" {
		t.Fatalf("principal = %+v", p)
	}
}

func TestAuthenticatorRejects(t *testing.T) {
	a := &Authenticator{Tokens: stubTokens{}, JWTSecret: "secret"}
	bad, _ := SignJWT("other-secret", "user_1", 1, time.Minute)
	expired, _ := SignJWT("secret", "user_1", 1, -time.Minute)
	cases := map[string]string{
		"missing":       "",
		"wrong scheme":  "Basic abc",
		"unknown key":   "Bearer sk-nope",
		"bad signature": "Bearer " + bad,
		"expired":       "Bearer " + expired,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			rec, _ := serveAuth(a, header)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestAuthenticatorJWT(t *testing.T) {
	a := &Authenticator{JWTSecret: "secret"}
	tok, err := SignJWT("secret", "user_9", 7, time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	rec, p := serveAuth(a, "Bearer "+tok)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if p.UserID != "user_9" || p.TokenID != 7 {
		t.Fatalf("principal = %+v", p)
	}
}

func TestAuthenticatorCustomErrorWriter(t *testing.T) {
	var seen error
	a := &Authenticator{OnError: func(w http.ResponseWriter, r *http.Request, err error) {
		seen = err
		w.WriteHeader(http.StatusTeapot)
	}}
	rec, _ := serveAuth(a, "")
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", rec.Code)
	}
	if !errors.Is(seen, domain.ErrUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", seen)
	}
}
