// Package main is the entry point of the evaluation reminder service and its
// operator CLI.
package main

import (
	"os"

	"evaluation_reminders/cmd/reminders/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
