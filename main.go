// ABOUTME: Entry point for the cadence CLI and MCP server
// ABOUTME: Loads .env, wires signal handling and hands off to the command tree
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/harperreed/cadence/cli"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

func main() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.App(version).RunContext(ctx, os.Args); err != nil {
		log.Error().Err(err).Msg("command failed")
		stop()
		os.Exit(1)
	}
}
