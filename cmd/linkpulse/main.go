// linkpulse はセッション認証APIサーバーのエントリーポイント。
//
// 使い方:
//
//	linkpulse [serve|worker|migrate|healthcheck]
//	linkpulse create-user <email>   # パスワードは標準入力から読む
//	linkpulse delete-user <email>
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/linkpulse/internal/app"
)

// version は-ldflags "-X main.version=..." で埋め込む。
var version = "dev"

func main() {
	app.Version = version
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
