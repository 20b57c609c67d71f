// Package main is the entry point for the wellness operator CLI.
package main

import (
	"os"

	"example.com/wellness/cmd/wellnessctl/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		app.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}
