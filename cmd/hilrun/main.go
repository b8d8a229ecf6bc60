// Package main is the entry point for the hilrun CLI.
package main

import (
	"os"

	"github.com/AndreyAkinshin/hilrun/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
