// The main package for the docresolver executable.
package main

import (
	"github.com/JakeFAU/docresolver/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
