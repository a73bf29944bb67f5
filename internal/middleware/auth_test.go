package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/expenfyre/internal/auth"
)

type mockVerifier struct {
	verifyFn func(ctx context.Context, token string) (*auth.Claims, error)
}

func (m *mockVerifier) VerifyAccess(ctx context.Context, token string) (*auth.Claims, error) {
	return m.verifyFn(ctx, token)
}

func claimsFor(email, jti string) *auth.Claims {
	return &auth.Claims{
		Type: auth.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: email,
			ID:      jti,
		},
	}
}

func tokenVerifier(valid string) *mockVerifier {
	return &mockVerifier{
		verifyFn: func(ctx context.Context, token string) (*auth.Claims, error) {
			if token != valid {
				return nil, auth.ErrInvalidToken
			}
			return claimsFor("alice@example.com", "jti-123"), nil
		},
	}
}

func echoUserHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, err := UserEmailFromContext(r.Context())
		if err != nil {
			WriteInternalServerError(w)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{
			"email": email,
			"jti":   TokenIDFromContext(r.Context()),
		})
	})
}

func TestAuthMiddleware_BearerToken(t *testing.T) {
	handler := NewAuthMiddleware(tokenVerifier("good"))(echoUserHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", w.Code, w.Body.String())
	}

	var body struct {
		Success bool              `json:"success"`
		Data    map[string]string `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data["email"] != "alice@example.com" {
		t.Errorf("email = %q", body.Data["email"])
	}
	if body.Data["jti"] != "jti-123" {
		t.Errorf("jti = %q", body.Data["jti"])
	}
}

func TestAuthMiddleware_Cookie(t *testing.T) {
	handler := NewAuthMiddleware(tokenVerifier("cookie-token"))(echoUserHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/groups", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "cookie-token"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_BearerTakesPrecedenceOverCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "cookie-token"})

	if got := AccessTokenFromRequest(req); got != "header-token" {
		t.Errorf("AccessTokenFromRequest = %q, want header-token", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	if got := AccessTokenFromRequest(req); got != "" {
		t.Errorf("non-bearer scheme should be ignored, got %q", got)
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		verifier *mockVerifier
	}{
		{"missing token", "", tokenVerifier("good")},
		{"invalid token", "Bearer bad", tokenVerifier("good")},
		{"blacklisted token", "Bearer good", &mockVerifier{
			verifyFn: func(ctx context.Context, token string) (*auth.Claims, error) {
				return nil, errors.Join(auth.ErrInvalidToken, errors.New("revoked"))
			},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewAuthMiddleware(tt.verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/expenses", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
			var body Envelope
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Success || body.Code != "UNAUTHORIZED" {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestUserEmailFromContext_Missing(t *testing.T) {
	if _, err := UserEmailFromContext(context.Background()); err == nil {
		t.Error("expected error for empty context")
	}
	ctx := ContextWithUserEmail(context.Background(), "bob@example.com")
	if email, err := UserEmailFromContext(ctx); err != nil || email != "bob@example.com" {
		t.Errorf("UserEmailFromContext = %q, %v", email, err)
	}
}
