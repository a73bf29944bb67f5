// Package auth はGoogleログイン、ホワイトリスト判定、トークンの発行と失効を提供する。
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/expenfyre/internal/kv"
	"github.com/hitoshi/expenfyre/internal/model"
	"github.com/hitoshi/expenfyre/internal/repository"
)

// ErrAccessDenied はホワイトリストに存在しないユーザーがログインした場合に返される。
var ErrAccessDenied = errors.New("access denied")

const userCacheTTL = 24 * time.Hour

// DeniedError はホワイトリスト外のログインを表す。
// アクセス申請画面の初期値として名前とメールを持つ。
type DeniedError struct {
	Email string
	Name  string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied for %s", e.Email)
}

func (e *DeniedError) Unwrap() error {
	return ErrAccessDenied
}

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Picture        string
	Provider       string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	GetLoginURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// DefaultGroupEnsurer はユーザーの個人用グループを用意する。
type DefaultGroupEnsurer interface {
	EnsureDefaultGroup(ctx context.Context, user *model.User) (string, error)
}

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	User   *model.User
	Tokens *TokenPair
}

// Service はログインとユーザー情報取得のビジネスロジックを提供する。
type Service struct {
	oauth    OAuthProvider
	users    repository.UserRepository
	requests repository.AccessRequestRepository
	tokens   *TokenService
	cache    kv.Store
	groups   DefaultGroupEnsurer
	events   EventRecorder
	now      func() time.Time
}

// NewService はServiceを生成する。groupsとeventsはnilでもよい。
func NewService(
	oauth OAuthProvider,
	users repository.UserRepository,
	requests repository.AccessRequestRepository,
	tokens *TokenService,
	cache kv.Store,
	groups DefaultGroupEnsurer,
	events EventRecorder,
) *Service {
	if events == nil {
		events = nopRecorder{}
	}
	return &Service{
		oauth:    oauth,
		users:    users,
		requests: requests,
		tokens:   tokens,
		cache:    cache,
		groups:   groups,
		events:   events,
		now:      time.Now,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback は認可コードを交換し、ホワイトリストを確認してトークンを発行する。
// 初回ログイン時はUsersタブの行にid・名前・画像・作成日時を補完し、個人用グループを作成する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*LoginResult, error) {
	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, model.NewUpstreamError("google oauth", err)
	}

	user, err := s.users.FindByEmail(ctx, info.Email)
	if err != nil {
		return nil, model.NewUpstreamError("sheets", err)
	}
	if user == nil {
		s.events.RecordAuthEvent("denied")
		slog.Warn("login denied: email not whitelisted", slog.String("user_email", info.Email))
		return nil, &DeniedError{Email: info.Email, Name: info.Name}
	}

	if s.fillProfile(user, info) {
		if err := s.users.Update(ctx, user); err != nil {
			return nil, model.NewUpstreamError("sheets", err)
		}
		slog.Info("user profile initialized", slog.String("user_email", user.Email))
	}

	if s.groups != nil {
		groupID, err := s.groups.EnsureDefaultGroup(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("failed to ensure default group: %w", err)
		}
		if user.DefaultGroupID != groupID {
			user.DefaultGroupID = groupID
			if err := s.users.Update(ctx, user); err != nil {
				return nil, model.NewUpstreamError("sheets", err)
			}
		}
	}

	s.cacheUser(ctx, user)

	tokens, err := s.tokens.CreateTokens(ctx, user.Email)
	if err != nil {
		return nil, err
	}

	s.events.RecordAuthEvent("login")
	slog.Info("user logged in", slog.String("user_email", user.Email))
	return &LoginResult{User: user, Tokens: tokens}, nil
}

// fillProfile は未設定の項目をOAuthのプロフィールで埋める。変更があればtrueを返す。
func (s *Service) fillProfile(user *model.User, info *OAuthUserInfo) bool {
	changed := false
	if user.ID == "" {
		user.ID = uuid.New().String()
		changed = true
	}
	if user.Name == "" && info.Name != "" {
		user.Name = info.Name
		changed = true
	}
	if info.Picture != "" && user.Picture != info.Picture {
		user.Picture = info.Picture
		changed = true
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC()
		changed = true
	}
	return changed
}

// CurrentUser はKVのキャッシュ、なければUsersタブからユーザーを取得する。
func (s *Service) CurrentUser(ctx context.Context, email string) (*model.User, error) {
	if raw, err := s.cache.Get(ctx, kv.PrefixUser+email); err == nil {
		var cached model.User
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return &cached, nil
		}
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, model.NewUpstreamError("sheets", err)
	}
	if user == nil {
		return nil, model.NewNotFoundError("user", email)
	}
	s.cacheUser(ctx, user)
	return user, nil
}

func (s *Service) cacheUser(ctx context.Context, user *model.User) {
	data, err := json.Marshal(user)
	if err != nil {
		return
	}
	if err := s.cache.Put(ctx, kv.PrefixUser+user.Email, string(data), userCacheTTL); err != nil {
		slog.Warn("failed to cache user",
			slog.String("user_email", user.Email),
			slog.String("error", err.Error()),
		)
	}
}

// InvalidateUser はユーザーキャッシュを破棄する。
func (s *Service) InvalidateUser(ctx context.Context, email string) error {
	return s.cache.Delete(ctx, kv.PrefixUser+email)
}

// RequestAccess はアクセス申請を追加する。
// 既にホワイトリストにある場合と未処理の申請がある場合は何もしない。
func (s *Service) RequestAccess(ctx context.Context, email, name, reason string) (bool, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return false, model.NewValidationError("a valid email is required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return false, model.NewUpstreamError("sheets", err)
	}
	if user != nil {
		return false, nil
	}

	pending, err := s.requests.FindPendingByEmail(ctx, email)
	if err != nil {
		return false, model.NewUpstreamError("sheets", err)
	}
	if pending != nil {
		return false, nil
	}

	req := &model.AccessRequest{
		Email:       email,
		Name:        strings.TrimSpace(name),
		Reason:      strings.TrimSpace(reason),
		RequestedAt: s.now().UTC(),
		Status:      model.AccessRequestPending,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return false, model.NewUpstreamError("sheets", err)
	}

	slog.Info("access request submitted", slog.String("user_email", email))
	return true, nil
}
