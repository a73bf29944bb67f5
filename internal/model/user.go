// Package model はドメインモデルを定義する。
package model

import "time"

// Status は行の論理状態を表す。削除は物理削除ではなくinactiveへの更新で行う。
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ParseStatus はシートの値をStatusに変換する。空文字はactiveとみなす。
func ParseStatus(s string) Status {
	if s == string(StatusInactive) {
		return StatusInactive
	}
	return StatusActive
}

// User はホワイトリスト（Usersタブ）に登録されたユーザーを表す。
// Emailは大文字小文字を区別する一意キーとして扱う。
type User struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Picture        string    `json:"picture"`
	CreatedAt      time.Time `json:"created_at"`
	DefaultGroupID string    `json:"default_group_id"`
}

// Category は支出カテゴリ。実質的に静的な参照データ。
type Category struct {
	ID        string    `json:"category_id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon"`
	Color     string    `json:"color"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

// AccessRequest は未登録ユーザーからのアクセス申請。
type AccessRequest struct {
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
	Status      string    `json:"status"`
}

// AccessRequestPending は未処理のアクセス申請の状態値。
const AccessRequestPending = "pending"
