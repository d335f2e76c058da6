// The main package for the catalog-crawler executable.
package main

import (
	"github.com/scrapemonster/catalog-crawler/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
