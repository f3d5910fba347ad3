// Command mproxy is the message proxy's entrypoint: the default "serve"
// command runs the HTTP-fronted delivery pipeline; "config init" scaffolds
// a channel config file; "status" polls a running proxy's stat endpoints
// from a live TUI. CLI surface per SPEC_FULL §6.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:  "mproxy",
		Usage: "HTTP-fronted message proxy with per-channel bounded delivery queues",
		Commands: []*cli.Command{
			serveCommand(),
			configCommand(),
			statusCommand(),
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}
