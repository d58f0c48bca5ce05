// Command sercha-chat is a conversational search assistant over a knowledge base.
package main

import (
	"os"

	"github.com/custodia-labs/sercha-chat/internal/adapters/driving/cli"
)

// version is set by -ldflags at build time.
var version = "dev"

func main() {
	cli.SetVersion(version)
	cli.SetRuntimeBuilder(buildRuntime)
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
