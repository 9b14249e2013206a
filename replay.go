package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/user/blechat-peripheral/events"
	"github.com/user/blechat-peripheral/logger"
	"github.com/user/blechat-peripheral/scenario"
	"github.com/user/blechat-peripheral/testreport"
	"github.com/user/blechat-peripheral/ui"
)

var replayCommand = &cli.Command{
	Name:      "replay",
	Usage:     "print a recorded event file",
	ArgsUsage: "<recording.jsonl>",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "realtime",
			Usage: "keep the original spacing between events",
		},
		&cli.StringSliceFlag{
			Name:  "kind",
			Usage: "only show these event kinds",
		},
		&cli.StringFlag{
			Name:  "to-scenario",
			Usage: "also write a scenario that re-runs the recorded session",
		},
		&cli.StringFlag{
			Name:  "report",
			Usage: "also write a markdown session report into this directory",
		},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("usage: blechat replay <recording.jsonl>", 2)
		}
		f, err := os.Open(c.Args().First())
		if err != nil {
			return err
		}
		defer f.Close()
		if err := replay(f, ui.NewConsole(os.Stdout, !color.NoColor), c.StringSlice("kind"), c.Bool("realtime")); err != nil {
			return err
		}
		if out := c.String("to-scenario"); out != "" {
			if err := writeScenario(c.Args().First(), out); err != nil {
				return err
			}
			logger.Info("main", "✅ scenario written to %s", out)
		}
		if dir := c.String("report"); dir != "" {
			path, err := testreport.Generate(c.Args().First(), dir)
			if err != nil {
				return err
			}
			logger.Info("main", "✅ report written to %s", path)
		}
		return nil
	},
}

// replay feeds a recording to an observer, optionally filtered by kind and
// paced like the original.
func replay(r io.Reader, o events.Observer, kinds []string, realtime bool) error {
	recorded, err := events.ReadRecording(r)
	if err != nil {
		return errors.Wrap(err, "replay")
	}
	keep := make(map[events.Kind]bool, len(kinds))
	for _, k := range kinds {
		keep[events.Kind(k)] = true
	}

	var prev time.Time
	for _, e := range recorded {
		if len(keep) > 0 && !keep[e.Kind] {
			continue
		}
		if realtime && !prev.IsZero() && e.Time.After(prev) {
			time.Sleep(e.Time.Sub(prev))
		}
		prev = e.Time
		if err := o.Observe(e); err != nil {
			return errors.Wrapf(err, "replay event %d", e.Seq)
		}
	}
	return nil
}

func writeScenario(recordingPath, out string) error {
	f, err := os.Open(recordingPath)
	if err != nil {
		return err
	}
	defer f.Close()
	recorded, err := events.ReadRecording(f)
	if err != nil {
		return errors.Wrap(err, "to-scenario")
	}
	name := strings.TrimSuffix(filepath.Base(recordingPath), filepath.Ext(recordingPath))
	return scenario.FromRecording(name, recorded).Save(out)
}
