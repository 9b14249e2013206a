package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/user/blechat-peripheral/config"
	"github.com/user/blechat-peripheral/logger"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "blechat",
		Usage: "BLE chat peripheral: a chat service and a battery service over a simulated link",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "JSON config file",
				EnvVars: []string{"BLECHAT_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "TRACE, DEBUG, INFO, WARN or ERROR",
			},
			&cli.BoolFlag{
				Name:  "log-json",
				Usage: "log as JSON lines",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "advertised device name",
			},
			&cli.DurationFlag{
				Name:  "battery-interval",
				Usage: "time between battery level updates",
			},
			&cli.BoolFlag{
				Name:  "no-echo",
				Usage: "do not notify a writer of its own chat message",
			},
			&cli.StringFlag{
				Name:  "record",
				Usage: "append every event to this JSON-lines file",
			},
			&cli.StringFlag{
				Name:  "listen",
				Usage: "serve the websocket UI mirror on this address (e.g. :8080)",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "do not print events to the terminal",
			},
			&cli.Float64Flag{
				Name:  "loss",
				Usage: "probability that a response is lost on the simulated link",
			},
			&cli.Int64Flag{
				Name:  "seed",
				Usage: "seed for the loss simulation (0 = random)",
			},
		},
		Commands: []*cli.Command{
			serveCommand,
			demoCommand,
			replayCommand,
			scenarioCommand,
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

// loadConfig layers the config file, BLECHAT_* variables and flags, in that
// order, and applies the log level.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("name") {
		cfg.DeviceName = c.String("name")
	}
	if c.IsSet("battery-interval") {
		cfg.Battery.Interval = config.Duration{Duration: c.Duration("battery-interval")}
	}
	if c.Bool("no-echo") {
		cfg.Chat.EchoToWriter = false
	}
	if c.IsSet("record") {
		cfg.Events.RecordPath = c.String("record")
	}
	if c.IsSet("listen") {
		cfg.UI.ListenAddr = c.String("listen")
	}
	if c.Bool("quiet") {
		cfg.UI.Console = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
	logger.SetJSON(c.Bool("log-json"))
	logger.DebugJSON("main", "config", cfg)
	return cfg, nil
}
