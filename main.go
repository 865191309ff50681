package main

import (
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/anicoll/tibber-prices/cmd"
	"github.com/anicoll/tibber-prices/internal/pkg/tibber"
)

func main() {
	app := &cli.App{
		Name:   "tibber-prices",
		Usage:  "caches and serves Tibber electricity prices",
		Action: cmd.TibberCommand,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "tibber-token",
				EnvVars:  []string{"TIBBER_TOKEN"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "tibber-url",
				EnvVars: []string{"TIBBER_URL"},
				Value:   tibber.DefaultEndpoint,
			},
			&cli.StringFlag{
				Name:    "home-id",
				EnvVars: []string{"HOME_ID"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "database-url",
				EnvVars: []string{"DATABASE_URL"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "state-dir",
				EnvVars: []string{"STATE_DIR"},
				Value:   ".",
			},
			&cli.StringFlag{
				Name:    "listen-addr",
				EnvVars: []string{"LISTEN_ADDR"},
				Value:   ":8080",
			},
			&cli.DurationFlag{
				Name:    "api-timeout",
				EnvVars: []string{"API_TIMEOUT"},
				Value:   time.Second * 10,
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "INFO",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
