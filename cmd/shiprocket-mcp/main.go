// Command shiprocket-mcp serves the Shiprocket shipping tools to MCP clients
// over stdio (default) or the dual-channel SSE transport.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

var version = "dev"

func main() {
	if err := command().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func command() *cli.Command {
	return &cli.Command{
		Name:    "shiprocket-mcp",
		Usage:   "Shiprocket order tracking and rate tools for MCP clients",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "transport",
				Aliases: []string{"t"},
				Value:   transportStdio,
				Usage:   "Transport to serve: stdio or sse",
				Sources: cli.EnvVars("MCP_TRANSPORT"),
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address for the sse transport (default \":$APP_PORT\")",
			},
		},
		Action: run,
	}
}
