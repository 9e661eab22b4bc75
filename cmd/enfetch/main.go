// Package main provides the enfetch command.
package main

import (
	"context"
	"os"

	"github.com/ic3tools/enfetch/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:]))
}
