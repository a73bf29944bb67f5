package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType はトークンの用途。用途ごとに署名鍵が異なる。
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// ErrInvalidToken はトークンの検証に失敗した場合に返される。
// 失敗理由（署名不一致、期限切れ、失効済み等）は呼び出し元に区別させない。
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims はトークンのペイロード。subはユーザーのメールアドレス、jtiはランダムID。
type Claims struct {
	Type TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Email はトークンの主体を返す。
func (c *Claims) Email() string {
	return c.Subject
}

// TokenCodec はHMAC-SHA256によるトークンの発行と検証を行う。
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	now           func() time.Time
}

// NewTokenCodec はTokenCodecを生成する。
func NewTokenCodec(accessSecret, refreshSecret string) *TokenCodec {
	return &TokenCodec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		now:           time.Now,
	}
}

// SetClock はテスト用に現在時刻の取得関数を差し替える。
func (c *TokenCodec) SetClock(now func() time.Time) {
	c.now = now
}

func (c *TokenCodec) secret(typ TokenType) ([]byte, error) {
	switch typ {
	case TokenTypeAccess:
		return c.accessSecret, nil
	case TokenTypeRefresh:
		return c.refreshSecret, nil
	default:
		return nil, fmt.Errorf("unknown token type %q", typ)
	}
}

func ttlFor(typ TokenType) time.Duration {
	if typ == TokenTypeRefresh {
		return RefreshTokenTTL
	}
	return AccessTokenTTL
}

// Issue は指定用途のトークンを発行する。
func (c *TokenCodec) Issue(email string, typ TokenType) (string, *Claims, error) {
	key, err := c.secret(typ)
	if err != nil {
		return "", nil, err
	}

	now := c.now()
	claims := &Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttlFor(typ))),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign %s token: %w", typ, err)
	}
	return signed, claims, nil
}

// Parse は署名・用途・有効期限を検証してクレームを返す。
// 失効（ブラックリスト）の確認はTokenServiceが行う。
func (c *TokenCodec) Parse(token string, typ TokenType) (*Claims, error) {
	key, err := c.secret(typ)
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Type != typ {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrInvalidToken, typ, claims.Type)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing sub or jti", ErrInvalidToken)
	}
	return claims, nil
}
