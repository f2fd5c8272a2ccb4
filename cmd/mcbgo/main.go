// Package main provides the entry point for the mcbgo CLI.
package main

import (
	"os"

	"github.com/marlonsc/mcbgo/cmd/mcbgo/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
