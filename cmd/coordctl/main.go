// Package main is the entry point for the coordinator admin CLI.
package main

import (
	"os"

	"github.com/dungeonmind/coordinator/cmd/coordctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
