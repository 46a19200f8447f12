// Command assemblies validates assembly definitions, runs scenarios and
// reads back recorded notification logs.
package main

import (
	"os"

	"github.com/roach88/assemblies/internal/cli"
)

func main() {
	// Subcommands report their own errors; cobra prints the rest.
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
