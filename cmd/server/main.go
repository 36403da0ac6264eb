// Package main implements the taskforge server binary: it runs the task
// scheduler behind an HTTP API, migrates the metrics store and prints the
// status of a running server.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
