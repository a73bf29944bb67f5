package repository

import (
	"context"

	"github.com/hitoshi/expenfyre/internal/model"
	"github.com/hitoshi/expenfyre/internal/sheets"
)

// TabAccessRequests は初回申請時に作成されるタブ名。
const TabAccessRequests = "Access Request"

var accessRequestCodec = rowCodec[model.AccessRequest]{
	tab:    TabAccessRequests,
	header: []string{"email", "name", "reason", "requested_at", "status"},
	idCol:  "email",
	decode: func(r rowReader) *model.AccessRequest {
		return &model.AccessRequest{
			Email:       r.str("email"),
			Name:        r.str("name"),
			Reason:      r.str("reason"),
			RequestedAt: r.time("requested_at"),
			Status:      r.str("status"),
		}
	},
	encode: func(a *model.AccessRequest) map[string]string {
		return map[string]string{
			"email":        a.Email,
			"name":         a.Name,
			"reason":       a.Reason,
			"requested_at": formatTime(a.RequestedAt),
			"status":       a.Status,
		}
	},
	idOf: func(a *model.AccessRequest) string { return a.Email },
}

// SheetAccessRequestRepo は"Access Request"タブを使用したアクセス申請リポジトリ。
type SheetAccessRequestRepo struct {
	store sheetStore[model.AccessRequest]
}

func NewSheetAccessRequestRepo(table sheets.Table) *SheetAccessRequestRepo {
	return &SheetAccessRequestRepo{store: sheetStore[model.AccessRequest]{table: table, codec: accessRequestCodec}}
}

// Create は申請行を追加する。同じメールの過去の申請があっても追加する。
func (r *SheetAccessRequestRepo) Create(ctx context.Context, req *model.AccessRequest) error {
	if err := r.store.table.EnsureTab(ctx, TabAccessRequests, accessRequestCodec.header); err != nil {
		return err
	}
	snap, err := r.store.snapshot(ctx)
	if err != nil {
		return err
	}
	return r.store.table.Append(ctx, TabAccessRequests, encodeRow(snap.header, accessRequestCodec.header, accessRequestCodec.encode(req)))
}

// FindPendingByEmail は未処理の申請を検索する。
func (r *SheetAccessRequestRepo) FindPendingByEmail(ctx context.Context, email string) (*model.AccessRequest, error) {
	all, err := r.store.list(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range all {
		if a.Email == email && a.Status == model.AccessRequestPending {
			return a, nil
		}
	}
	return nil, nil
}

var _ AccessRequestRepository = (*SheetAccessRequestRepo)(nil)
