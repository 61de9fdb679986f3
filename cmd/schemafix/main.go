// Command schemafix maps and cleans tabular files against the canonical
// schema from the command line.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
