// Command librarian は図書推薦APIサーバーとワーカーを起動する。
//
//	librarian [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/librarian/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "librarian: %v\n", err)
		os.Exit(1)
	}
}
