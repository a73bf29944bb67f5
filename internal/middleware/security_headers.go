package middleware

import (
	"net/http"
	"strings"
)

// publicFilePrefix は別オリジンのフロントエンドから<img>で参照されるレシート配信パス。
const publicFilePrefix = "/api/file/"

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
// APIレスポンスはキャッシュさせない。レシート配信のみクロスオリジンでの埋め込みとキャッシュを許可する。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

			if strings.HasPrefix(r.URL.Path, publicFilePrefix) {
				h.Set("Cross-Origin-Resource-Policy", "cross-origin")
			} else {
				h.Set("X-Frame-Options", "DENY")
				h.Set("Cache-Control", "no-store")
			}
			next.ServeHTTP(w, r)
		})
	}
}
