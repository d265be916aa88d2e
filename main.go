// Command engine is the entry point for the Channel Runtime.
package main

import (
	"fmt"
	"os"

	"github.com/corvushealth/engine/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
