package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/user/blechat-peripheral/scenario"
)

var scenarioCommand = &cli.Command{
	Name:      "scenario",
	Usage:     "run a scripted scenario of simulated centrals and check its assertions",
	ArgsUsage: "<scenario.json>",
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:  "settle",
			Usage: "wait after the last step before checking assertions",
			Value: 500 * time.Millisecond,
		},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("usage: blechat scenario <scenario.json>", 2)
		}
		sc, err := scenario.LoadScenario(c.Args().First())
		if err != nil {
			return err
		}
		if problems := sc.Validate(); len(problems) > 0 {
			fmt.Println("❌ Scenario validation failed:")
			for _, p := range problems {
				fmt.Printf("  - %s\n", p)
			}
			return cli.Exit("", 1)
		}

		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		s, err := newStack(cfg, simulationFromFlags(c), os.Stdout)
		if err != nil {
			return err
		}
		defer s.Close()

		fmt.Printf("=== Running Scenario: %s ===\n", sc.Name)
		if sc.Description != "" {
			fmt.Printf("Description: %s\n", sc.Description)
		}
		fmt.Printf("Centrals: %d, steps: %d, duration: %v\n\n", len(sc.Centrals), len(sc.Timeline), sc.Duration())

		target := scenario.Target{Link: s.link, Server: s.server, Chat: s.chat, Battery: s.battery}
		result, err := scenario.NewRunner(sc, target, c.Duration("settle")).Run(c.Context)
		if err != nil {
			return err
		}

		for _, r := range result.Results {
			mark := "✅"
			if !r.Passed {
				mark = "❌"
			}
			fmt.Printf("%s %s: %s\n", mark, r.What, r.Message)
		}
		if failed := result.Failed(); len(failed) > 0 {
			return cli.Exit(fmt.Sprintf("%d of %d check(s) failed", len(failed), len(result.Results)), 1)
		}
		fmt.Println("\n✅ Scenario passed")
		return nil
	},
}
