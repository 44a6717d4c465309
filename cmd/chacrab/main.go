// Command chacrab is a zero-knowledge, offline-first password manager.
// This file is the process entry point; the command tree itself lives in
// the other files of this package, one file per command group, following
// the teacher's cmd/secretctl layout.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/chacrab/chacrab/internal/redact"
)

func main() {
	err := rootCmd.Execute()

	if repo != nil {
		_ = repo.Close(context.Background())
	}

	if err != nil {
		code, message := redact.Report(err)
		fmt.Fprintln(os.Stderr, message)
		os.Exit(code)
	}
}
