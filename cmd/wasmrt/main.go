// Command wasmrt is a smoke-test CLI for the wasmrt runtime: it decodes,
// validates, compiles and optionally runs a WebAssembly binary, and prints
// what it finds. It is not a package manager or a registry client.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// RootCommand is the base command every subcommand registers itself
// against via AddCommand in its own init.
var RootCommand = &cobra.Command{
	Use:   "wasmrt",
	Short: "Compile and run WebAssembly modules against the wasmrt runtime",
}

func main() {
	if err := RootCommand.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
