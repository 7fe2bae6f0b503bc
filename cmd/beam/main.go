// Command beam is the command line tool for beam components.
package main

import (
	"fmt"
	"os"

	"github.com/go-drift/beam/cmd/beam/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
