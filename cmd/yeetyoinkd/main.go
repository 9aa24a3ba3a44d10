package main

import (
	"fmt"
	"os"

	"go.uber.org/automaxprocs/maxprocs"
)

func init() {
	// Matches GOMAXPROCS to the container CPU quota; silent by default
	// since the undo function is unused here.
	_, _ = maxprocs.Set()
}

func main() {
	if err := cmdRoot.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
