package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/expenfyre/internal/kv"
)

// ErrRateLimited はトークン発行・更新のレート制限を超えた場合に返される。
var ErrRateLimited = errors.New("token rate limit exceeded")

// レート制限の操作名。キーは rate_limit:<op>:<email>。
const (
	OpCreateTokens  = "create_tokens"
	OpRefreshTokens = "refresh_tokens"
)

const (
	blacklistTTL        = 7 * 24 * time.Hour
	defaultCreateLimit  = 50
	defaultRefreshLimit = 30
	rateLimitWindow     = time.Hour
)

// EventRecorder は認証イベントの計測を受け取る。
type EventRecorder interface {
	RecordAuthEvent(event string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthEvent(string) {}

// TokenServiceConfig はトークン発行の設定。
type TokenServiceConfig struct {
	CreateLimit  int // 1時間あたりの発行上限
	RefreshLimit int // 1時間あたりの更新上限
	Events       EventRecorder
}

// TokenPair はアクセストークンとリフレッシュトークンの組。
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// TokenService はトークンの発行・更新・失効とKV上の記録を管理する。
type TokenService struct {
	codec  *TokenCodec
	store  kv.Store
	config TokenServiceConfig
}

// NewTokenService はTokenServiceを生成する。
func NewTokenService(codec *TokenCodec, store kv.Store, config TokenServiceConfig) *TokenService {
	if config.CreateLimit <= 0 {
		config.CreateLimit = defaultCreateLimit
	}
	if config.RefreshLimit <= 0 {
		config.RefreshLimit = defaultRefreshLimit
	}
	if config.Events == nil {
		config.Events = nopRecorder{}
	}
	return &TokenService{codec: codec, store: store, config: config}
}

// CreateTokens はログイン時のトークンペアを発行する。
func (s *TokenService) CreateTokens(ctx context.Context, email string) (*TokenPair, error) {
	if err := s.checkRateLimit(ctx, OpCreateTokens, email, s.config.CreateLimit); err != nil {
		return nil, err
	}
	return s.issuePair(ctx, email)
}

// VerifyAccess はアクセストークンを検証する。
func (s *TokenService) VerifyAccess(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.codec.Parse(token, TokenTypeAccess)
	if err != nil {
		slog.Warn("access token rejected", slog.String("error", err.Error()))
		return nil, ErrInvalidToken
	}
	if err := s.checkNotBlacklisted(ctx, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefresh はリフレッシュトークンを検証する。
// KVに refresh_token:<jti> の記録が残っていることも要求する。
func (s *TokenService) VerifyRefresh(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.codec.Parse(token, TokenTypeRefresh)
	if err != nil {
		slog.Warn("refresh token rejected", slog.String("error", err.Error()))
		return nil, ErrInvalidToken
	}
	if err := s.checkNotBlacklisted(ctx, claims); err != nil {
		return nil, err
	}

	owner, err := s.store.Get(ctx, kv.PrefixRefreshToken+claims.ID)
	if errors.Is(err, kv.ErrNotFound) {
		slog.Warn("refresh token has no backing record", slog.String("jti", claims.ID))
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh token record: %w", err)
	}
	if owner != claims.Subject {
		slog.Warn("refresh token owner mismatch", slog.String("jti", claims.ID))
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Refresh はリフレッシュトークンをローテーションする。
// 古いトークンはブラックリストに入り記録も削除されるため、同じトークンでの更新は1回しか成功しない。
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, string, error) {
	claims, err := s.VerifyRefresh(ctx, refreshToken)
	if err != nil {
		return nil, "", err
	}
	email := claims.Subject

	if err := s.checkRateLimit(ctx, OpRefreshTokens, email, s.config.RefreshLimit); err != nil {
		return nil, "", err
	}

	if err := s.revoke(ctx, claims.ID); err != nil {
		return nil, "", err
	}

	pair, err := s.issuePair(ctx, email)
	if err != nil {
		return nil, "", err
	}
	s.config.Events.RecordAuthEvent("refresh")
	return pair, email, nil
}

// RevokeAll はユーザーの全リフレッシュトークンを失効させ、件数を返す。
// refresh_token: の全キーを走査するため、セッション数に比例して遅くなる。
func (s *TokenService) RevokeAll(ctx context.Context, email string) (int, error) {
	keys, err := s.store.List(ctx, kv.PrefixRefreshToken)
	if err != nil {
		return 0, fmt.Errorf("failed to list refresh tokens: %w", err)
	}

	revoked := 0
	for _, key := range keys {
		owner, err := s.store.Get(ctx, key)
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			return revoked, fmt.Errorf("failed to read refresh token record: %w", err)
		}
		if owner != email {
			continue
		}
		if err := s.revoke(ctx, key[len(kv.PrefixRefreshToken):]); err != nil {
			return revoked, err
		}
		revoked++
	}
	return revoked, nil
}

// SignOut はユーザーの全リフレッシュトークンと使用中のアクセストークンを失効させる。
func (s *TokenService) SignOut(ctx context.Context, email, accessJTI string) error {
	if accessJTI != "" {
		if err := s.Blacklist(ctx, accessJTI); err != nil {
			return err
		}
	}
	n, err := s.RevokeAll(ctx, email)
	if err != nil {
		return err
	}
	s.config.Events.RecordAuthEvent("signout")
	slog.Info("user signed out",
		slog.String("user_email", email),
		slog.Int("revoked_refresh_tokens", n),
	)
	return nil
}

// Blacklist はjtiを失効済みとして記録する。
func (s *TokenService) Blacklist(ctx context.Context, jti string) error {
	if err := s.store.Put(ctx, kv.PrefixBlacklist+jti, "true", blacklistTTL); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	return nil
}

// ClearRateLimits はユーザーの発行・更新カウンタをリセットする。
func (s *TokenService) ClearRateLimits(ctx context.Context, email string) error {
	for _, op := range []string{OpCreateTokens, OpRefreshTokens} {
		if err := s.store.Delete(ctx, rateLimitKey(op, email)); err != nil {
			return fmt.Errorf("failed to clear rate limit %s: %w", op, err)
		}
	}
	slog.Info("token rate limits cleared", slog.String("user_email", email))
	return nil
}

// CleanupResult はクリーンアップで削除したキー数。
type CleanupResult struct {
	RefreshTokens int `json:"refresh_tokens"`
	Blacklist     int `json:"blacklist"`
	RateLimits    int `json:"rate_limits"`
}

// Total は削除したキーの合計。
func (r CleanupResult) Total() int {
	return r.RefreshTokens + r.Blacklist + r.RateLimits
}

// Cleanup は値が既に期限切れになっているキーを削除する。
// ストアのTTLで消えなかったキーの掃除が目的。
func (s *TokenService) Cleanup(ctx context.Context) (CleanupResult, error) {
	var result CleanupResult
	var err error

	if result.RefreshTokens, err = s.sweep(ctx, kv.PrefixRefreshToken); err != nil {
		return result, err
	}
	if result.Blacklist, err = s.sweep(ctx, kv.PrefixBlacklist); err != nil {
		return result, err
	}
	if result.RateLimits, err = s.sweep(ctx, kv.PrefixRateLimit); err != nil {
		return result, err
	}
	return result, nil
}

func (s *TokenService) sweep(ctx context.Context, prefix string) (int, error) {
	keys, err := s.store.List(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s keys: %w", prefix, err)
	}

	deleted := 0
	for _, key := range keys {
		if _, err := s.store.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			return deleted, fmt.Errorf("failed to delete %s: %w", key, err)
		}
		deleted++
	}
	return deleted, nil
}

// PrefixStats はプレフィックスごとの有効キー数と期限切れキー数。
type PrefixStats struct {
	Active  int `json:"active"`
	Expired int `json:"expired"`
}

// Stats はクリーンアップ対象キーの集計。
type Stats struct {
	RefreshTokens PrefixStats `json:"refresh_tokens"`
	Blacklist     PrefixStats `json:"blacklist"`
	RateLimits    PrefixStats `json:"rate_limits"`
}

// Stats はクリーンアップ対象キーの件数を返す。
func (s *TokenService) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	targets := []struct {
		prefix string
		dst    *PrefixStats
	}{
		{kv.PrefixRefreshToken, &stats.RefreshTokens},
		{kv.PrefixBlacklist, &stats.Blacklist},
		{kv.PrefixRateLimit, &stats.RateLimits},
	}

	for _, target := range targets {
		keys, err := s.store.List(ctx, target.prefix)
		if err != nil {
			return stats, fmt.Errorf("failed to list %s keys: %w", target.prefix, err)
		}
		for _, key := range keys {
			_, err := s.store.Get(ctx, key)
			switch {
			case err == nil:
				target.dst.Active++
			case errors.Is(err, kv.ErrNotFound):
				target.dst.Expired++
			default:
				return stats, fmt.Errorf("failed to read %s: %w", key, err)
			}
		}
	}
	return stats, nil
}

func (s *TokenService) issuePair(ctx context.Context, email string) (*TokenPair, error) {
	access, accessClaims, err := s.codec.Issue(email, TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	refresh, refreshClaims, err := s.codec.Issue(email, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	if err := s.store.Put(ctx, kv.PrefixRefreshToken+refreshClaims.ID, email, RefreshTokenTTL); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
	}, nil
}

// revoke はリフレッシュトークンをブラックリストに入れ、記録を削除する。
func (s *TokenService) revoke(ctx context.Context, jti string) error {
	if err := s.Blacklist(ctx, jti); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, kv.PrefixRefreshToken+jti); err != nil {
		return fmt.Errorf("failed to delete refresh token record: %w", err)
	}
	return nil
}

func (s *TokenService) checkNotBlacklisted(ctx context.Context, claims *Claims) error {
	_, err := s.store.Get(ctx, kv.PrefixBlacklist+claims.ID)
	if err == nil {
		slog.Warn("blacklisted token presented",
			slog.String("jti", claims.ID),
			slog.String("type", string(claims.Type)),
		)
		return ErrInvalidToken
	}
	if !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("failed to check token blacklist: %w", err)
	}
	return nil
}

// checkRateLimit は固定ウィンドウのカウンタを進め、上限を超えたらErrRateLimitedを返す。
func (s *TokenService) checkRateLimit(ctx context.Context, op, email string, limit int) error {
	n, err := s.store.Incr(ctx, rateLimitKey(op, email), rateLimitWindow)
	if err != nil {
		return fmt.Errorf("failed to update rate limit counter: %w", err)
	}
	if n > int64(limit) {
		s.config.Events.RecordAuthEvent("rate_limited")
		slog.Warn("token rate limit exceeded",
			slog.String("operation", op),
			slog.String("user_email", email),
			slog.Int64("count", n),
		)
		return ErrRateLimited
	}
	return nil
}

func rateLimitKey(op, email string) string {
	return kv.PrefixRateLimit + op + ":" + email
}
