// The main package for the progmon executable.
package main

import (
	"github.com/JakeFAU/progress-monitor/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
