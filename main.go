// ./main.go
package main

import (
	"github.com/voidhawk9x/leakhound/cmd"
)

// main is the entry point for the leakhound CLI.
func main() {
	// Execute handles all command-line parsing, configuration, and execution.
	cmd.Execute()
}
