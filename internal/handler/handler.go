// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/expenfyre/internal/middleware"
	"github.com/hitoshi/expenfyre/internal/model"
)

// maxJSONBody はJSONリクエストボディの上限。receipt_url（最大50,000文字）を含められる大きさ。
const maxJSONBody = 1 << 20

// actorFrom は認証済みユーザーのメールアドレスを取得する。
// 取得できない場合は401を書き込みfalseを返す。
func actorFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	email, err := middleware.UserEmailFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return email, true
}

// decodeJSON はリクエストボディをdstにデコードする。
// 失敗した場合は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, model.NewValidationError("Request body too large"))
			return false
		}
		middleware.WriteError(w, model.NewValidationError("Invalid JSON body"))
		return false
	}
	return true
}

// queryInt はクエリパラメータを整数として読む。未指定ならdefを返す。
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, model.NewValidationError("%s must be a non-negative integer", key)
	}
	return n, nil
}

// pathParam はURLパラメータをデコードして返す。
func pathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
