// Package main is the entry point for the exchangectl admin CLI.
package main

import (
	"os"

	"github.com/somexchange/backend/cmd/exchangectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
