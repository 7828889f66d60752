// Package main is the entry point for the pcapsift capture extraction tool.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/pcapsift/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
