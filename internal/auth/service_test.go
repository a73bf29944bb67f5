package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/expenfyre/internal/kv"
	"github.com/hitoshi/expenfyre/internal/model"
	"github.com/hitoshi/expenfyre/internal/repository"
	"github.com/hitoshi/expenfyre/internal/sheets"
)

// --- モック定義 ---

type mockOAuthProvider struct {
	exchangeFn func(ctx context.Context, code string) (*OAuthUserInfo, error)
}

func (m *mockOAuthProvider) GetLoginURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (m *mockOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, code)
	}
	return nil, errors.New("not configured")
}

type mockGroupEnsurer struct {
	calls int
	id    string
}

func (m *mockGroupEnsurer) EnsureDefaultGroup(_ context.Context, _ *model.User) (string, error) {
	m.calls++
	return m.id, nil
}

func profileFor(email string) *mockOAuthProvider {
	return &mockOAuthProvider{
		exchangeFn: func(_ context.Context, _ string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{Email: email, Name: "Alice", Picture: "https://example.com/a.png", Provider: "google"}, nil
		},
	}
}

type serviceFixture struct {
	svc    *Service
	table  *sheets.MemoryTable
	store  *kv.MemoryStore
	groups *mockGroupEnsurer
	events *countingRecorder
}

func newServiceFixture(t *testing.T, oauth OAuthProvider) *serviceFixture {
	t.Helper()
	table := sheets.NewMemoryTable()
	table.Seed(repository.TabUsers, [][]string{
		{"id", "name", "email", "picture", "created_at", "default_group_id"},
		{"", "", "alice@example.com", "", "", ""},
	})
	store := kv.NewMemoryStore()
	events := &countingRecorder{}
	tokens := NewTokenService(NewTokenCodec("a", "r"), store, TokenServiceConfig{Events: events})
	groups := &mockGroupEnsurer{id: "group-personal"}

	svc := NewService(oauth,
		repository.NewSheetUserRepo(table),
		repository.NewSheetAccessRequestRepo(table),
		tokens, store, groups, events,
	)
	return &serviceFixture{svc: svc, table: table, store: store, groups: groups, events: events}
}

func TestService_HandleCallback_FirstLoginFillsProfile(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, profileFor("alice@example.com"))

	result, err := f.svc.HandleCallback(ctx, "code")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}
	if result.Tokens.AccessToken == "" || result.Tokens.RefreshToken == "" {
		t.Error("expected tokens to be issued")
	}

	u, _ := repository.NewSheetUserRepo(f.table).FindByEmail(ctx, "alice@example.com")
	if u.ID == "" || u.Name != "Alice" || u.CreatedAt.IsZero() {
		t.Errorf("user row not initialized: %+v", u)
	}
	if u.DefaultGroupID != "group-personal" {
		t.Errorf("DefaultGroupID = %q, want group-personal", u.DefaultGroupID)
	}
	if f.groups.calls != 1 {
		t.Errorf("EnsureDefaultGroup calls = %d, want 1", f.groups.calls)
	}
	if _, err := f.store.Get(ctx, kv.PrefixUser+"alice@example.com"); err != nil {
		t.Errorf("user not cached: %v", err)
	}
	if f.events.events["login"] != 1 {
		t.Errorf("login events = %d", f.events.events["login"])
	}

	// 2回目のログインではIDが変わらない
	again, err := f.svc.HandleCallback(ctx, "code")
	if err != nil {
		t.Fatalf("second HandleCallback() error = %v", err)
	}
	if again.User.ID != u.ID {
		t.Errorf("user ID changed from %q to %q", u.ID, again.User.ID)
	}
}

func TestService_HandleCallback_DeniesUnknownEmail(t *testing.T) {
	f := newServiceFixture(t, profileFor("mallory@example.com"))

	_, err := f.svc.HandleCallback(context.Background(), "code")
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("error = %v, want ErrAccessDenied", err)
	}
	var denied *DeniedError
	if !errors.As(err, &denied) || denied.Email != "mallory@example.com" {
		t.Errorf("denied = %+v", denied)
	}
	if f.events.events["denied"] != 1 {
		t.Errorf("denied events = %d", f.events.events["denied"])
	}
}

func TestService_HandleCallback_OAuthFailureIsUpstream(t *testing.T) {
	f := newServiceFixture(t, &mockOAuthProvider{
		exchangeFn: func(context.Context, string) (*OAuthUserInfo, error) {
			return nil, errors.New("invalid_grant")
		},
	})

	_, err := f.svc.HandleCallback(context.Background(), "code")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUpstream {
		t.Fatalf("error = %v, want upstream APIError", err)
	}
}

func TestService_CurrentUser_UsesCacheThenSheet(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil)

	u, err := f.svc.CurrentUser(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if u.Email != "alice@example.com" {
		t.Errorf("Email = %q", u.Email)
	}

	// シートが変わってもキャッシュから返る
	f.table.Seed(repository.TabUsers, [][]string{{"email"}})
	if _, err := f.svc.CurrentUser(ctx, "alice@example.com"); err != nil {
		t.Errorf("cached CurrentUser() error = %v", err)
	}

	f.svc.InvalidateUser(ctx, "alice@example.com")
	_, err = f.svc.CurrentUser(ctx, "alice@example.com")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeNotFound {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
}

func TestService_RequestAccess_DeduplicatesPending(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil)

	created, err := f.svc.RequestAccess(ctx, "new@example.com", "New", "please")
	if err != nil || !created {
		t.Fatalf("RequestAccess() = %v, %v", created, err)
	}
	created, err = f.svc.RequestAccess(ctx, "new@example.com", "New", "again")
	if err != nil || created {
		t.Errorf("duplicate RequestAccess() = %v, %v, want false, nil", created, err)
	}

	rows, _ := f.table.Rows(ctx, repository.TabAccessRequests)
	if len(rows) != 2 {
		t.Errorf("rows = %d, want header + 1", len(rows))
	}
}

func TestService_RequestAccess_ValidatesEmail(t *testing.T) {
	f := newServiceFixture(t, nil)

	_, err := f.svc.RequestAccess(context.Background(), "not-an-email", "", "")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
		t.Errorf("error = %v, want VALIDATION_ERROR", err)
	}
}

func TestService_RequestAccess_SkipsWhitelisted(t *testing.T) {
	f := newServiceFixture(t, nil)

	created, err := f.svc.RequestAccess(context.Background(), "alice@example.com", "Alice", "")
	if err != nil || created {
		t.Errorf("RequestAccess() = %v, %v, want false, nil", created, err)
	}
}
