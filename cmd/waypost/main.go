package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"github.com/wayposthq/waypost/internal/app"
	"github.com/wayposthq/waypost/internal/config"
	"github.com/wayposthq/waypost/internal/version"
)

func main() {
	cmd := &cli.Command{
		Name:    "waypost",
		Usage:   "Outbound webhook delivery service",
		Version: version.Version(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Sources: cli.EnvVars("CONFIG"),
			},
			&cli.StringFlag{
				Name:    "service",
				Usage:   "Service to run: api, delivery, or empty for both",
				Sources: cli.EnvVars("SERVICE"),
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := config.Parse(config.Flags{
				Config:  c.String("config"),
				Service: c.String("service"),
			})
			if err != nil {
				return err
			}
			return app.New(cfg).Run(ctx)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
