package sheets

import (
	"context"
	"sync"
)

// MemoryTable はプロセス内メモリで動作するTable実装。
// テストおよび SHEETS_BACKEND=memory のローカル開発で使用する。
type MemoryTable struct {
	mu   sync.RWMutex
	tabs map[string][][]string
}

// NewMemoryTable はMemoryTableを生成する。
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{tabs: make(map[string][][]string)}
}

// Seed はタブの内容を丸ごと設定する。テスト用。
func (t *MemoryTable) Seed(tab string, rows [][]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tabs[tab] = copyRows(rows)
}

// Rows はタブの全行のコピーを返す。
func (t *MemoryTable) Rows(_ context.Context, tab string) ([][]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return copyRows(t.tabs[tab]), nil
}

// Append は行を追加する。
func (t *MemoryTable) Append(_ context.Context, tab string, row []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tabs[tab] = append(t.tabs[tab], append([]string(nil), row...))
	return nil
}

// Update は行を上書きする。
func (t *MemoryTable) Update(_ context.Context, tab string, rowIndex int, row []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows := t.tabs[tab]
	if rowIndex < 0 || rowIndex >= len(rows) {
		return ErrRowOutOfRange
	}
	rows[rowIndex] = append([]string(nil), row...)
	return nil
}

// EnsureTab は空のタブにヘッダー行を書き込む。
func (t *MemoryTable) EnsureTab(_ context.Context, tab string, header []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.tabs[tab]) == 0 {
		t.tabs[tab] = [][]string{append([]string(nil), header...)}
	}
	return nil
}

func copyRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

// compile-time interface check
var _ Table = (*MemoryTable)(nil)
