// Package main is the entry point for the seriesgraph application
package main

import (
	"github.com/ethpandaops/seriesgraph/cmd"
)

func main() {
	cmd.Execute()
}
