// The main package for the crawler executable.
package main

import (
	"github.com/tulashvilimindia/batumi.work/cmd"
)

// main defers all execution to the cobra CLI.
func main() {
	cmd.Execute()
}
