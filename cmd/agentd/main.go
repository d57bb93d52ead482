// Command agentd is a long-lived daemon that gives each project
// directory a persistent agent conversation over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	// A local .env is a convenience for API keys; absence is fine.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "agentd",
		Short:        "Project-scoped agent session daemon",
		Version:      version,
		SilenceUsage: true,
	}
	root.AddCommand(serveCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
