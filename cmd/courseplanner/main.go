// Package main provides the entry point for the courseplanner CLI.
package main

import (
	"fmt"
	"os"

	"github.com/Sumatoshi-tech/courseplanner/cmd/courseplanner/commands"
	"github.com/Sumatoshi-tech/courseplanner/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	err := commands.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
