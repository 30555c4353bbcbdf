package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestVerifyToken_RoundTrip(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	userID := uuid.New()

	token, err := auth.GenerateAccessToken(userID)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	got, err := auth.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if got != userID {
		t.Errorf("expected user %s, got %s", userID, got)
	}
}

func TestVerifyToken_Rejects(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	userID := uuid.New()

	expired := func() string {
		claims := jwt.MapClaims{
			"user_id": userID.String(),
			"exp":     time.Now().Add(-time.Minute).Unix(),
			"iat":     time.Now().Add(-time.Hour).Unix(),
		}
		s, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(auth.Secret)
		return s
	}()

	wrongSecret := func() string {
		other := NewJWTAuth("other-secret")
		s, _ := other.GenerateAccessToken(userID)
		return s
	}()

	missingUserID := func() string {
		claims := jwt.MapClaims{
			"exp": time.Now().Add(time.Minute).Unix(),
		}
		s, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(auth.Secret)
		return s
	}()

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.token"},
		{"empty", ""},
		{"expired", expired},
		{"wrong secret", wrongSecret},
		{"missing user_id claim", missingUserID},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := auth.VerifyToken(tc.token); err == nil {
				t.Error("expected verification to fail")
			}
		})
	}
}

func TestMiddleware_AttachesUserID(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	userID := uuid.New()
	token, err := auth.GenerateAccessToken(userID)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	var gotUserID uuid.UUID
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = GetUserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/live-sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if gotUserID != userID {
		t.Errorf("expected context user %s, got %s", userID, gotUserID)
	}
}

func TestMiddleware_RejectsBadHeaders(t *testing.T) {
	auth := NewJWTAuth("test-secret")

	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc123"},
		{"bearer with bad token", "Bearer nope"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/live-sessions", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rr.Code)
			}
		})
	}
}
