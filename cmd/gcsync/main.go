// Command gcsync runs the resync-after-garbage-collection scenario against a cluster
// of nodes and exits non-zero when the stopped node does not catch up in time.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	scenarioFlags := []cli.Flag{
		&cli.StringFlag{
			Name:  "cluster",
			Usage: "cluster to run against: memory, local or compose",
		},
		&cli.StringFlag{
			Name:  "tconfig-file",
			Usage: "scenario configuration file (.yaml, .json or .env)",
		},
		&cli.Uint64Flag{
			Name:  "target-height",
			Usage: "height the live node must reach while the other node is down",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "time the restarted node gets to catch up",
		},
		&cli.DurationFlag{
			Name:  "poll-interval",
			Usage: "time between status queries",
		},
		&cli.DurationFlag{
			Name:  "restart-grace",
			Usage: "time between the restart and the first status query",
		},
		&cli.BoolFlag{
			Name:  "skip-restart",
			Usage: "do not restart the stopped node, the run is expected to time out",
		},
		&cli.BoolFlag{
			Name:  "skip-teardown",
			Usage: "leave a compose stack running after the run",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "DEBUG, INFO, WARN or ERROR",
		},
	}

	return &cli.App{
		Name:  "gcsync",
		Usage: "checks that a node stopped across garbage collection resyncs after a restart",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "run the scenario",
				Action: runScenario,
				Flags: append(scenarioFlags, &cli.StringFlag{
					Name:  "metrics-addr",
					Usage: "serve prometheus metrics on this address while the scenario runs, e.g. :9091",
				}),
			},
			{
				Name:   "config",
				Usage:  "print the resolved scenario configuration",
				Action: printConfig,
				Flags:  scenarioFlags,
			},
		},
	}
}
