// Package kv はTTL付きキーバリューストアを提供する。
// リフレッシュトークンの追跡、ブラックリスト、レート制限カウンタ、
// アップロードファイル、ユーザーキャッシュの保存先として使用する。
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound はキーが存在しない、または期限切れの場合に返される。
var ErrNotFound = errors.New("kv: key not found")

// Store はTTL付きキーバリューストアのインターフェース。
type Store interface {
	// Get はキーの値を返す。存在しない・期限切れの場合はErrNotFoundを返す。
	Get(ctx context.Context, key string) (string, error)
	// Put は値を保存する。ttlが0以下の場合は期限なし。
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete はキーを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, key string) error
	// List はprefixで始まるキーを返す。
	// バックエンドによっては期限切れで物理削除されていないキーも含む。
	List(ctx context.Context, prefix string) ([]string, error)
	// Incr はカウンタを1増やして新しい値を返す。
	// カウンタが新規作成された場合のみttlを設定する（固定ウィンドウ）。
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// キーのプレフィックス
const (
	PrefixRefreshToken = "refresh_token:"
	PrefixBlacklist    = "blacklist:"
	PrefixRateLimit    = "rate_limit:"
	PrefixFile         = "file:"
	PrefixUser         = "user:"
)
