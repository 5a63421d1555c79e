// Command vipchannel はVIPチャンネルのAPIサーバー、ワーカー、マイグレーション、デモデータ投入を起動する。
//
//	vipchannel [serve|worker|migrate|seed|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/vipchannel/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "vipchannel: %v\n", err)
		os.Exit(1)
	}
}
