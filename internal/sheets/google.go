package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// GoogleTable はGoogle Sheets API v4を使用したTable実装。
// すべての呼び出しはThrottleを経由する。
type GoogleTable struct {
	svc           *gsheets.Service
	spreadsheetID string
	throttle      *Throttle
}

// NewGoogleTable はGoogleTableを生成する。
// tsはサービスアカウントのトークンソース。optsはテストでのエンドポイント差し替え用。
func NewGoogleTable(ctx context.Context, spreadsheetID string, ts oauth2.TokenSource, throttle *Throttle, opts ...option.ClientOption) (*GoogleTable, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	if throttle == nil {
		throttle = NewThrottle(ThrottleConfig{})
	}

	clientOpts := append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	svc, err := gsheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &GoogleTable{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		throttle:      throttle,
	}, nil
}

// Rows はタブの全行を取得する。
func (g *GoogleTable) Rows(ctx context.Context, tab string) ([][]string, error) {
	var vr *gsheets.ValueRange
	err := g.throttle.Do(ctx, "get", func() error {
		var err error
		vr, err = g.svc.Spreadsheets.Values.Get(g.spreadsheetID, quoteTab(tab)).Context(ctx).Do()
		return err
	})
	if isMissingTab(err) {
		return [][]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", tab, err)
	}
	return toStrings(vr.Values), nil
}

// Append はタブの末尾に行を追加する。
func (g *GoogleTable) Append(ctx context.Context, tab string, row []string) error {
	vr := &gsheets.ValueRange{Values: [][]interface{}{toInterfaces(row)}}
	err := g.throttle.Do(ctx, "append", func() error {
		_, err := g.svc.Spreadsheets.Values.Append(g.spreadsheetID, quoteTab(tab)+"!A1", vr).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to append to sheet %q: %w", tab, err)
	}
	return nil
}

// Update はrowIndex（0始まり、ヘッダー行が0）の行を上書きする。
func (g *GoogleTable) Update(ctx context.Context, tab string, rowIndex int, row []string) error {
	if rowIndex < 0 {
		return ErrRowOutOfRange
	}
	rng := fmt.Sprintf("%s!A%d", quoteTab(tab), rowIndex+1)
	vr := &gsheets.ValueRange{Values: [][]interface{}{toInterfaces(row)}}
	err := g.throttle.Do(ctx, "update", func() error {
		_, err := g.svc.Spreadsheets.Values.Update(g.spreadsheetID, rng, vr).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update sheet %q row %d: %w", tab, rowIndex, err)
	}
	return nil
}

// EnsureTab はタブが無ければ追加し、空であればヘッダー行を書き込む。
func (g *GoogleTable) EnsureTab(ctx context.Context, tab string, header []string) error {
	var ss *gsheets.Spreadsheet
	err := g.throttle.Do(ctx, "metadata", func() error {
		var err error
		ss, err = g.svc.Spreadsheets.Get(g.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to read spreadsheet metadata: %w", err)
	}

	exists := false
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == tab {
			exists = true
			break
		}
	}

	if !exists {
		req := &gsheets.BatchUpdateSpreadsheetRequest{
			Requests: []*gsheets.Request{{
				AddSheet: &gsheets.AddSheetRequest{
					Properties: &gsheets.SheetProperties{Title: tab},
				},
			}},
		}
		err := g.throttle.Do(ctx, "add_sheet", func() error {
			_, err := g.svc.Spreadsheets.BatchUpdate(g.spreadsheetID, req).Context(ctx).Do()
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to add sheet %q: %w", tab, err)
		}
	} else {
		rows, err := g.Rows(ctx, tab)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			return nil
		}
	}

	return g.Update(ctx, tab, 0, header)
}

// quoteTab は空白を含むタブ名をA1記法用にクォートする。
func quoteTab(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}

// isMissingTab は存在しないタブを参照したときの400エラーかを判定する。
func isMissingTab(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Message, "Unable to parse range")
}

func toStrings(values [][]interface{}) [][]string {
	rows := make([][]string, len(values))
	for i, r := range values {
		row := make([]string, len(r))
		for j, v := range r {
			if v != nil {
				row[j] = fmt.Sprint(v)
			}
		}
		rows[i] = row
	}
	return rows
}

func toInterfaces(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}

// compile-time interface check
var _ Table = (*GoogleTable)(nil)
