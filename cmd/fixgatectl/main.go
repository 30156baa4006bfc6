// Command fixgatectl administers a running FIXGate server over its
// admin API.
package main

import (
	"os"

	"github.com/marmos91/fixgate/cmd/fixgatectl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
