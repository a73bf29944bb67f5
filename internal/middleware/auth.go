// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/expenfyre/internal/auth"
	"github.com/hitoshi/expenfyre/internal/model"
)

// AccessTokenCookie はアクセストークンを保持するCookieの名前。
const AccessTokenCookie = "access_token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	userEmailContextKey = contextKey("user_email")
	tokenIDContextKey   = contextKey("token_id")
)

// AccessVerifier はアクセストークンの検証に必要なインターフェース。
// *auth.TokenService が実装する。
type AccessVerifier interface {
	VerifyAccess(ctx context.Context, token string) (*auth.Claims, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークン、
// またはaccess_token Cookieからアクセストークンを読み取り検証するミドルウェアを返す。
// 認証済みユーザーのメールアドレスとトークンIDをリクエストコンテキストに注入する。
// 未認証リクエストには401を返す。
func NewAuthMiddleware(verifier AccessVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := AccessTokenFromRequest(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			claims, err := verifier.VerifyAccess(r.Context(), token)
			if err != nil {
				WriteError(w, err)
				return
			}

			email := claims.Email()
			setRequestUser(r.Context(), email)
			ctx := context.WithValue(r.Context(), userEmailContextKey, email)
			ctx = context.WithValue(ctx, tokenIDContextKey, claims.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessTokenFromRequest はBearerヘッダーを優先してアクセストークンを取り出す。
func AccessTokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// UserEmailFromContext はリクエストコンテキストから認証済みユーザーのメールアドレスを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserEmailFromContext(ctx context.Context) (string, error) {
	email, ok := ctx.Value(userEmailContextKey).(string)
	if !ok || email == "" {
		return "", fmt.Errorf("user email not found in context")
	}
	return email, nil
}

// TokenIDFromContext はアクセストークンのjtiを取得する。
func TokenIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(tokenIDContextKey).(string)
	return id
}

// ContextWithUserEmail はコンテキストにメールアドレスを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, userEmailContextKey, email)
}
