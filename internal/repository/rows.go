package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/expenfyre/internal/sheets"
)

// ErrNotFound は更新対象の行が存在しない場合に返される。
var ErrNotFound = errors.New("repository: row not found")

// ErrDuplicateID は追加しようとした行のIDが既に存在する場合に返される。
var ErrDuplicateID = errors.New("repository: duplicate id")

const maxIDAttempts = 5

// rowCodec はエンティティとシート行の相互変換を定義する。
// 読み取りはヘッダー名で列を引くため、シート上の列順には依存しない。
type rowCodec[T any] struct {
	tab    string
	header []string // タブ新規作成時の正規ヘッダー
	idCol  string
	decode func(r rowReader) *T
	encode func(v *T) map[string]string
	idOf   func(v *T) string
	setID  func(v *T, id string)
}

// rowReader はヘッダー名で1行の値を引く。
type rowReader struct {
	index map[string]int
	row   []string
}

func (r rowReader) str(col string) string {
	i, ok := r.index[col]
	if !ok || i >= len(r.row) {
		return ""
	}
	return strings.TrimSpace(r.row[i])
}

func (r rowReader) float(col string) float64 {
	f, err := strconv.ParseFloat(r.str(col), 64)
	if err != nil {
		return 0
	}
	return f
}

func (r rowReader) bool(col string) bool {
	b, err := strconv.ParseBool(r.str(col))
	return err == nil && b
}

func (r rowReader) time(col string) time.Time {
	return parseTime(r.str(col))
}

// parseTime はRFC3339または日付のみの値を解釈する。解釈できなければゼロ値。
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// tabSnapshot は1回の読み取りで得たタブの内容。
type tabSnapshot struct {
	header []string
	index  map[string]int
	rows   [][]string // rows[0]はヘッダー
}

func newTabSnapshot(rows [][]string) *tabSnapshot {
	s := &tabSnapshot{rows: rows, index: map[string]int{}}
	if len(rows) > 0 {
		s.header = rows[0]
		for i, h := range rows[0] {
			h = strings.TrimSpace(h)
			if _, dup := s.index[h]; !dup {
				s.index[h] = i
			}
		}
	}
	return s
}

func (s *tabSnapshot) reader(i int) rowReader {
	return rowReader{index: s.index, row: s.rows[i]}
}

// sheetStore はrowCodecを使ってTableの1タブをエンティティ集合として扱う。
type sheetStore[T any] struct {
	table sheets.Table
	codec rowCodec[T]
}

func (s *sheetStore[T]) snapshot(ctx context.Context) (*tabSnapshot, error) {
	rows, err := s.table.Rows(ctx, s.codec.tab)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.codec.tab, err)
	}
	return newTabSnapshot(rows), nil
}

// list は空行を除いた全行をデコードして返す。
func (s *sheetStore[T]) list(ctx context.Context) ([]*T, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(snap.rows))
	for i := 1; i < len(snap.rows); i++ {
		r := snap.reader(i)
		if r.str(s.codec.idCol) == "" {
			continue
		}
		out = append(out, s.codec.decode(r))
	}
	return out, nil
}

// findBy は列colが値valueに完全一致する最初の行を返す。行番号はRowsのインデックス。
func (s *sheetStore[T]) findBy(ctx context.Context, col, value string) (*T, int, *tabSnapshot, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, -1, nil, err
	}
	for i := 1; i < len(snap.rows); i++ {
		r := snap.reader(i)
		if value != "" && r.str(col) == value {
			return s.codec.decode(r), i, snap, nil
		}
	}
	return nil, -1, snap, nil
}

func (s *sheetStore[T]) find(ctx context.Context, id string) (*T, error) {
	v, _, _, err := s.findBy(ctx, s.codec.idCol, id)
	return v, err
}

// create はタブを用意し、IDの衝突を確認してから1行追加する。
// 読み取りと追加はアトミックではないため、衝突確認はベストエフォート。
func (s *sheetStore[T]) create(ctx context.Context, v *T) error {
	if err := s.table.EnsureTab(ctx, s.codec.tab, s.codec.header); err != nil {
		return fmt.Errorf("failed to prepare %s: %w", s.codec.tab, err)
	}
	snap, err := s.snapshot(ctx)
	if err != nil {
		return err
	}

	existing := make(map[string]struct{}, len(snap.rows))
	for i := 1; i < len(snap.rows); i++ {
		existing[snap.reader(i).str(s.codec.idCol)] = struct{}{}
	}

	if s.codec.setID != nil && s.codec.idOf(v) == "" {
		for attempt := 0; ; attempt++ {
			if attempt == maxIDAttempts {
				return fmt.Errorf("failed to generate unique id for %s", s.codec.tab)
			}
			id := uuid.New().String()
			if _, taken := existing[id]; !taken {
				s.codec.setID(v, id)
				break
			}
		}
	} else if _, taken := existing[s.codec.idOf(v)]; taken {
		return fmt.Errorf("%s %q: %w", s.codec.tab, s.codec.idOf(v), ErrDuplicateID)
	}

	if err := s.table.Append(ctx, s.codec.tab, encodeRow(snap.header, s.codec.header, s.codec.encode(v))); err != nil {
		return fmt.Errorf("failed to append to %s: %w", s.codec.tab, err)
	}
	return nil
}

// update はIDが一致する行を上書きする。シートにしかない列の値は保持する。
func (s *sheetStore[T]) update(ctx context.Context, v *T) error {
	return s.updateBy(ctx, s.codec.idCol, s.codec.idOf(v), v)
}

func (s *sheetStore[T]) updateBy(ctx context.Context, col, value string, v *T) error {
	_, rowIndex, snap, err := s.findBy(ctx, col, value)
	if err != nil {
		return err
	}
	if rowIndex < 0 {
		return fmt.Errorf("%s %q: %w", s.codec.tab, value, ErrNotFound)
	}

	values := s.codec.encode(v)
	row := encodeRow(snap.header, s.codec.header, values)
	current := snap.rows[rowIndex]
	for i, h := range snap.header {
		if _, known := values[strings.TrimSpace(h)]; !known && i < len(current) {
			row[i] = current[i]
		}
	}

	if err := s.table.Update(ctx, s.codec.tab, rowIndex, row); err != nil {
		return fmt.Errorf("failed to update %s: %w", s.codec.tab, err)
	}
	return nil
}

// encodeRow はシートの現在のヘッダー順に値を並べる。ヘッダーが無ければ正規ヘッダー順。
func encodeRow(header, canonical []string, values map[string]string) []string {
	if len(header) == 0 {
		header = canonical
	}
	row := make([]string, len(header))
	for i, h := range header {
		row[i] = values[strings.TrimSpace(h)]
	}
	return row
}

func formatBool(b bool) string {
	return strconv.FormatBool(b)
}
