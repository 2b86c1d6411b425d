// Package main provides the entry point for the codegate CLI.
package main

import (
	"fmt"
	"os"

	"github.com/codegate-ai/codegate/cmd/codegate/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
