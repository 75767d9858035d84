// Package main provides the marketsync CLI: a live reactive view of the
// marketplace ledger plus one-shot reads and writes against it.
package main

import (
	"os"

	"market-sync/cmd/marketsync/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
