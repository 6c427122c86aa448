package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/arklim/deadline-jail/internal/infra/security"
)

type KeygenCmd struct {
	dir  string
	kid  string
	bits int
}

func NewKeygenCmd() *KeygenCmd {
	return &KeygenCmd{}
}

func (cmd *KeygenCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "keygen",
		Usage:       "Generate an RSA signing key for access tokens",
		UsageText:   "jailctl keygen [options]",
		Description: "Writes <kid>.pem into the key directory. The newest key signs, older keys keep verifying.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "dir",
				Usage:       "key directory",
				Sources:     cli.EnvVars("JAIL_JWT_KEY_DIRECTORY"),
				Value:       "./secrets",
				Destination: &cmd.dir,
			},
			&cli.StringFlag{
				Name:        "kid",
				Usage:       "key id (defaults to the current UTC date and time)",
				Destination: &cmd.kid,
			},
			&cli.IntFlag{
				Name:        "bits",
				Value:       2048,
				Destination: &cmd.bits,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *KeygenCmd) run(_ context.Context, c *cli.Command) error {
	kid := cmd.kid
	if kid == "" {
		kid = time.Now().UTC().Format("20060102150405")
	}

	path, err := security.WriteKeyPair(cmd.dir, kid, cmd.bits)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Root().Writer, "wrote %s\n", path)
	return nil
}
