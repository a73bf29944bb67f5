package app

import (
	"fmt"
	"strings"
)

// Command はexpenfyreバイナリのサブコマンド。
type Command string

const (
	CommandServe       Command = "serve"
	CommandWorker      Command = "worker"
	CommandMigrate     Command = "migrate"
	CommandHealthcheck Command = "healthcheck"
)

// commands は受け付けるサブコマンドと説明。Usageの表示順を兼ねる。
var commands = []struct {
	cmd  Command
	desc string
}{
	{CommandServe, "HTTP APIを起動する（省略時）"},
	{CommandWorker, "期限切れトークンとレート制限カウンタの定期掃除だけを行う"},
	{CommandMigrate, "KV_BACKEND=postgres用のkv_entriesテーブルを作成する"},
	{CommandHealthcheck, "起動中のサーバーの/api/healthを確認する"},
}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。
// 引数なしはserve。未知の名前は打ち間違いのままサーバーを起動しないようエラーにする。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 || args[0] == "" {
		return CommandServe, nil
	}
	name := Command(strings.ToLower(args[0]))
	for _, c := range commands {
		if c.cmd == name {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown command %q\n%s", args[0], Usage())
}

// Usage はサブコマンドの一覧を返す。
func Usage() string {
	var b strings.Builder
	b.WriteString("usage: expenfyre [command]\n")
	for _, c := range commands {
		fmt.Fprintf(&b, "  %-12s %s\n", c.cmd, c.desc)
	}
	return b.String()
}
