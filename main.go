// The main package for the ccpipe executable.
package main

import (
	"github.com/JakeFAU/cc-text-pipeline/cmd"
)

func main() {
	cmd.Execute()
}
