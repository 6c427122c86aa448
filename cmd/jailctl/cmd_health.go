package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type HealthCmd struct {
	addr    string
	service string
	timeout time.Duration
}

func NewHealthCmd() *HealthCmd {
	return &HealthCmd{}
}

func (cmd *HealthCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "health",
		Usage:       "Query the gRPC health endpoint of a running server",
		UsageText:   "jailctl health [options]",
		Description: "Exits non-zero unless the server reports SERVING.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "gRPC address of the server",
				Sources:     cli.EnvVars("JAIL_GRPC_ADDR"),
				Value:       "localhost:50051",
				Destination: &cmd.addr,
			},
			&cli.StringFlag{
				Name:        "service",
				Usage:       "service name to check, empty for overall status",
				Destination: &cmd.service,
			},
			&cli.DurationFlag{
				Name:        "timeout",
				Value:       5 * time.Second,
				Destination: &cmd.timeout,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *HealthCmd) run(ctx context.Context, c *cli.Command) error {
	conn, err := grpc.NewClient(cmd.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("connect %s: %w", cmd.addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, cmd.timeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: cmd.service})
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}

	fmt.Fprintln(c.Root().Writer, resp.GetStatus().String())
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return cli.Exit("", 2)
	}
	return nil
}
