// Command agreements runs the agreement engine.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/agreements/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
