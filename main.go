// The main package for the toolhub-crawler executable.
package main

import (
	"github.com/JakeFAU/toolhub-crawler/cmd"
)

func main() {
	cmd.Execute()
}
