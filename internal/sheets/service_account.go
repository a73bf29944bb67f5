package sheets

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	oauthjwt "golang.org/x/oauth2/jwt"
)

const (
	defaultTokenURL = "https://oauth2.googleapis.com/token"
	// SpreadsheetsScope はスプレッドシートの読み書きスコープ。
	SpreadsheetsScope = "https://www.googleapis.com/auth/spreadsheets"
)

// ServiceAccountConfig はサービスアカウント認証の設定。
type ServiceAccountConfig struct {
	Email         string
	PrivateKeyPEM string // PKCS8 PEM。環境変数由来の "\n" エスケープも受け付ける
	Scopes        []string

	// テスト用にオーバーライド可能
	TokenURL   string
	HTTPClient *http.Client
}

// NewServiceAccountTokenSource はJWT-bearerグラントでアクセストークンを取得するトークンソースを返す。
// 取得したトークンは有効期限の直前まで再利用される。
func NewServiceAccountTokenSource(cfg ServiceAccountConfig) (oauth2.TokenSource, error) {
	if cfg.Email == "" {
		return nil, fmt.Errorf("service account email is required")
	}

	pemText := strings.ReplaceAll(cfg.PrivateKeyPEM, `\n`, "\n")
	// x/oauth2/jwtは初回のToken()まで鍵を読まないため、起動時に形式だけ確認する
	if _, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pemText)); err != nil {
		return nil, fmt.Errorf("failed to parse service account private key: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{SpreadsheetsScope}
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	conf := &oauthjwt.Config{
		Email:      cfg.Email,
		PrivateKey: []byte(pemText),
		Scopes:     scopes,
		TokenURL:   tokenURL,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
	return conf.TokenSource(ctx), nil
}
