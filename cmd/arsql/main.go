// Command arsql inspects active-record SQLite databases and generates Go
// entity types from their schema.
package main

import (
	"os"

	"github.com/CaliLuke/go-activerecord/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
