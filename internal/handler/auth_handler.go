package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/hitoshi/expenfyre/internal/auth"
	"github.com/hitoshi/expenfyre/internal/middleware"
	"github.com/hitoshi/expenfyre/internal/model"
)

const (
	refreshTokenCookie = "refresh_token"
	oauthStateCookie   = "oauth_state"

	accessCookieMaxAge  = 900
	refreshCookieMaxAge = 604800
)

// AuthService は認証ハンドラーが必要とするログイン関連のサービス。
type AuthService interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*auth.LoginResult, error)
	CurrentUser(ctx context.Context, email string) (*model.User, error)
	RequestAccess(ctx context.Context, email, name, reason string) (bool, error)
	InvalidateUser(ctx context.Context, email string) error
}

// TokenManager はトークンの更新・失効とKVの保守を行う。
type TokenManager interface {
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, string, error)
	SignOut(ctx context.Context, email, accessJTI string) error
	ClearRateLimits(ctx context.Context, email string) error
	Stats(ctx context.Context) (auth.Stats, error)
}

// CleanupRunner は期限切れキーの掃除を1回実行する。
type CleanupRunner interface {
	Run(ctx context.Context) (auth.CleanupResult, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	FrontendURL  string // ポップアップのpostMessage送信先オリジン
	CookieDomain string
	CookieSecure bool
}

// AuthHandler はOAuth認証とセッション管理のHTTPハンドラー。
type AuthHandler struct {
	service AuthService
	tokens  TokenManager
	cleanup CleanupRunner
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthService, tokens TokenManager, cleanup CleanupRunner, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		tokens:  tokens,
		cleanup: cleanup,
		config:  config,
	}
}

// Login はGoogle OAuthフローを開始する。
// GET /api/auth/google
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusFound)
}

// popupMessage はログインポップアップからopenerへ送るメッセージ。
type popupMessage struct {
	Type         string      `json:"type"`
	User         *model.User `json:"user,omitempty"`
	AccessToken  string      `json:"accessToken,omitempty"`
	RefreshToken string      `json:"refreshToken,omitempty"`
	Error        string      `json:"error,omitempty"`
	Code         string      `json:"code,omitempty"`
	Email        string      `json:"email,omitempty"`
	Name         string      `json:"name,omitempty"`
}

var popupTemplate = template.Must(template.New("popup").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<p>{{.Title}}</p>
<script>
(function () {
  var message = {{.Message}};
  if (window.opener) {
    window.opener.postMessage(message, {{.Origin}});
  }
  window.close();
})();
</script>
</body>
</html>
`))

// Callback はOAuthコールバックを処理し、openerウィンドウに結果を通知するHTMLを返す。
// GET /api/auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch", slog.String("query_state", state))
		h.renderPopup(w, http.StatusBadRequest, popupMessage{
			Type:  "AUTH_ERROR",
			Code:  model.ErrCodeValidation,
			Error: "Invalid state parameter",
		})
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得（ユーザーが同意を拒否した場合はerrorが付く）
	code := r.URL.Query().Get("code")
	if code == "" {
		reason := r.URL.Query().Get("error")
		if reason == "" {
			reason = "Missing authorization code"
		}
		h.renderPopup(w, http.StatusBadRequest, popupMessage{
			Type:  "AUTH_ERROR",
			Code:  model.ErrCodeValidation,
			Error: reason,
		})
		return
	}

	// 3. 認証処理
	result, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		var denied *auth.DeniedError
		if errors.As(err, &denied) {
			h.renderPopup(w, http.StatusUnauthorized, popupMessage{
				Type:  "AUTH_ERROR",
				Code:  model.ErrCodeAccessDenied,
				Error: "Access denied. You can request access.",
				Email: denied.Email,
				Name:  denied.Name,
			})
			return
		}
		if errors.Is(err, auth.ErrRateLimited) {
			h.renderPopup(w, http.StatusTooManyRequests, popupMessage{
				Type:  "AUTH_ERROR",
				Code:  model.ErrCodeRateLimited,
				Error: "Too many sign-in attempts. Please try again later.",
			})
			return
		}
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		h.renderPopup(w, http.StatusInternalServerError, popupMessage{
			Type:  "AUTH_ERROR",
			Code:  model.ErrCodeInternal,
			Error: "Authentication failed",
		})
		return
	}

	// 4. トークンCookieを設定
	h.setTokenCookies(w, result.Tokens)

	// 5. openerに結果を通知
	h.renderPopup(w, http.StatusOK, popupMessage{
		Type:         "AUTH_SUCCESS",
		User:         result.User,
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
	})
}

func (h *AuthHandler) renderPopup(w http.ResponseWriter, status int, msg popupMessage) {
	title := "Signed in"
	if msg.Type != "AUTH_SUCCESS" {
		title = "Sign-in failed"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	err := popupTemplate.Execute(w, struct {
		Title   string
		Message popupMessage
		Origin  string
	}{title, msg, h.config.FrontendURL})
	if err != nil {
		slog.Error("failed to render auth popup", slog.String("error", err.Error()))
	}
}

// Me は現在のログインユーザー情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	email, ok := actorFrom(w, r)
	if !ok {
		return
	}

	user, err := h.service.CurrentUser(r.Context(), email)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, user)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	*auth.TokenPair
	Email string `json:"email"`
}

// Refresh はリフレッシュトークンをローテーションして新しいトークンを返す。
// トークンはrefresh_token Cookie、なければJSONボディから読む。
// POST /api/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := ""
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil {
		token = cookie.Value
	}
	if token == "" && r.ContentLength != 0 {
		var req refreshRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		token = req.RefreshToken
	}
	if token == "" {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	pair, email, err := h.tokens.Refresh(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			h.clearTokenCookies(w)
		}
		middleware.WriteError(w, err)
		return
	}

	h.setTokenCookies(w, pair)
	middleware.WriteJSON(w, http.StatusOK, tokenResponse{TokenPair: pair, Email: email})
}

// SignOut はユーザーの全リフレッシュトークンと現在のアクセストークンを失効させる。
// POST /api/auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	email, ok := actorFrom(w, r)
	if !ok {
		return
	}

	if err := h.tokens.SignOut(r.Context(), email, middleware.TokenIDFromContext(r.Context())); err != nil {
		// 失効に失敗してもCookieはクリアする
		slog.Error("failed to sign out",
			slog.String("user_email", email),
			slog.String("error", err.Error()),
		)
	}
	if err := h.service.InvalidateUser(r.Context(), email); err != nil {
		slog.Warn("failed to invalidate cached user",
			slog.String("user_email", email),
			slog.String("error", err.Error()),
		)
	}

	h.clearTokenCookies(w)
	middleware.WriteMessage(w, http.StatusOK, "Signed out successfully")
}

// ClearRateLimit は操作者のトークン発行・更新カウンタをリセットする。
// POST /api/auth/clear-rate-limit
func (h *AuthHandler) ClearRateLimit(w http.ResponseWriter, r *http.Request) {
	email, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if err := h.tokens.ClearRateLimits(r.Context(), email); err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteMessage(w, http.StatusOK, "Rate limits cleared")
}

// Cleanup は期限切れのセッション関連キーを削除する。
// POST /api/auth/cleanup
func (h *AuthHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	result, err := h.cleanup.Run(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

// CleanupStats はクリーンアップ対象キーの件数を返す。
// GET /api/auth/cleanup/stats
func (h *AuthHandler) CleanupStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.tokens.Stats(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, stats)
}

type accessRequestBody struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// RequestAccess はホワイトリスト外のユーザーからのアクセス申請を受け付ける。
// POST /api/access-request
func (h *AuthHandler) RequestAccess(w http.ResponseWriter, r *http.Request) {
	var req accessRequestBody
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.service.RequestAccess(r.Context(), req.Email, req.Name, req.Reason)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	message := "Access request submitted"
	if !created {
		message = "Access request already received"
	}
	middleware.WriteMessage(w, http.StatusOK, message)
}

// setTokenCookies はアクセストークンとリフレッシュトークンのCookieを設定する。
func (h *AuthHandler) setTokenCookies(w http.ResponseWriter, pair *auth.TokenPair) {
	http.SetCookie(w, h.tokenCookie(middleware.AccessTokenCookie, pair.AccessToken, accessCookieMaxAge))
	http.SetCookie(w, h.tokenCookie(refreshTokenCookie, pair.RefreshToken, refreshCookieMaxAge))
}

func (h *AuthHandler) clearTokenCookies(w http.ResponseWriter) {
	http.SetCookie(w, h.tokenCookie(middleware.AccessTokenCookie, "", -1))
	http.SetCookie(w, h.tokenCookie(refreshTokenCookie, "", -1))
}

// tokenCookie はフロントエンドが別オリジンでも送信されるCookieを生成する。
// SameSite=NoneはSecure必須のため、非HTTPSのローカル環境ではLaxにする。
func (h *AuthHandler) tokenCookie(name, value string, maxAge int) *http.Cookie {
	sameSite := http.SameSiteNoneMode
	if !h.config.CookieSecure {
		sameSite = http.SameSiteLaxMode
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: sameSite,
	}
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
