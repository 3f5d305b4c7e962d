// Command ydb runs and queries YAML DataBlock stores.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/ydb/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ydb: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
