// Package main provides the entry point for the memoryd CLI.
package main

import (
	"os"

	"github.com/aman-cerp/agentmem/cmd/memoryd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
