// Package main is the entry point for the postindex CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/postindex/cmd/postindex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
