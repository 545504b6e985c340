// Command tickloop runs scripts and scenarios against the cooperative
// scheduler on a simulated board.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/tickloop/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
