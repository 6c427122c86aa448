package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "jailctl:", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	app := &cli.Command{
		Name:      "jailctl",
		Usage:     "Operate a deadline jail deployment",
		UsageText: "jailctl command [command options]",
		Version:   version,
	}

	app = NewHealthCmd().Register(app)
	app = NewMigrateCmd().Register(app)
	app = NewKeygenCmd().Register(app)
	return app
}
