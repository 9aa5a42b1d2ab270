// Package main is the querypad command.
package main

import (
	"os"

	"github.com/leapstack-labs/querypad/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
