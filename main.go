package main

import (
	"os"

	"github.com/quayside/berthd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
