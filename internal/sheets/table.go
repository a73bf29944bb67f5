// Package sheets はGoogleスプレッドシートを行ストアとして扱うための抽象を提供する。
//
// Tableはトランザクションを持たない。Rowsで読み取った行番号に対してUpdateする
// 読み取り→書き込みはアトミックではなく、同じ行への同時更新は後勝ちで失われうる。
// 一意IDが必要な呼び出し元はランダムIDを生成し、書き込み前に既存行との衝突を確認すること。
package sheets

import (
	"context"
	"errors"
)

// ErrRowOutOfRange はUpdate対象の行番号が存在しない場合に返される。
var ErrRowOutOfRange = errors.New("sheets: row index out of range")

// Table はスプレッドシートのタブ単位の行操作インターフェース。
type Table interface {
	// Rows はタブの全行を返す。0行目はヘッダー行。
	// タブが存在しない場合は空スライスを返す。
	Rows(ctx context.Context, tab string) ([][]string, error)
	// Append はタブの末尾に1行追加する。
	Append(ctx context.Context, tab string, row []string) error
	// Update はRowsが返したスライス上のインデックスrowIndexの行を上書きする。
	Update(ctx context.Context, tab string, rowIndex int, row []string) error
	// EnsureTab はタブが存在しなければ作成し、空であればヘッダー行を書き込む。
	EnsureTab(ctx context.Context, tab string, header []string) error
}

// Observer はスプレッドシートAPI呼び出しの計測を受け取る。
type Observer interface {
	RecordSheetsCall(operation, outcome string, seconds float64)
	RecordSheetsBackoff(operation string)
}

type nopObserver struct{}

func (nopObserver) RecordSheetsCall(string, string, float64) {}
func (nopObserver) RecordSheetsBackoff(string)               {}
