// The main package for the scribblehub-fetch executable.
package main

import (
	"github.com/JakeFAU/scribblehub-fetch/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
