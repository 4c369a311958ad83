// Package main provides the entry point for the ebs-restore CLI tool.
// It initializes and executes the root command.
package main

import (
	"github.com/cesarempathy/ebs-restore/cmd"
)

func main() {
	cmd.Execute()
}
