// The main package for the eduspider executable.
package main

import (
	"github.com/JakeFAU/eduspider/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
