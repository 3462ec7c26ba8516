// Command campuscloset serves the campus marketplace API and inspects
// its rules, routes and action log.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/campuscloset/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
