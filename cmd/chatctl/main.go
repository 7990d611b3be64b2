// Package main is the entry point for the chatctl binary.
package main

import (
	"os"

	"github.com/Tyrowin/relaychat/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
