// Command temporaltables runs the temporal tables demo and inspects the
// queries and materialization plans of a mapping model.
package main

import (
	"os"

	"github.com/dragos-durlut/TemporalTables/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
