package app

import (
	"fmt"
	"strings"
)

// Command はvoyageバイナリのサブコマンド。
type Command string

const (
	// CommandServe はAPIサーバーを起動する。stateの定期削除も同じプロセスで行う。
	CommandServe Command = "serve"
	// CommandWorker はstate削除ジョブのみを実行する。
	CommandWorker Command = "worker"
	// CommandMigrate は埋め込みマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はローカルの/healthを叩いて終了コードで結果を返す。
	// シェルの無いdistrolessイメージのDocker HEALTHCHECK用。
	CommandHealthcheck Command = "healthcheck"
	// CommandHelp は使い方を表示する。
	CommandHelp Command = "help"
)

// commandSummaries はUsageに表示する説明。表示順を保つためスライスにする。
var commandSummaries = []struct {
	cmd     Command
	summary string
}{
	{CommandServe, "start the API server (default)"},
	{CommandWorker, "run the expired OAuth state sweeper"},
	{CommandMigrate, "apply database migrations and exit"},
	{CommandHealthcheck, "check the local /health endpoint"},
	{CommandHelp, "show this help"},
}

// ParseCommand はコマンドライン引数の先頭からサブコマンドを決める。
// 引数が無い場合と未知の値はCommandServeとして扱う。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	case "help", "-h", "--help":
		return CommandHelp
	default:
		return CommandServe
	}
}

// Usage はサブコマンド一覧を返す。
func Usage() string {
	var b strings.Builder
	b.WriteString("usage: voyage <command>\n\ncommands:\n")
	for _, c := range commandSummaries {
		fmt.Fprintf(&b, "  %-12s %s\n", c.cmd, c.summary)
	}
	return b.String()
}
