package main

import (
	"fmt"
	"os"

	"github.com/roach88/quadrant/internal/cli"
)

var version = "dev"

func main() {
	cmd := cli.NewRootCommand()
	cmd.Version = version
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
