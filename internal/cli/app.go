package cli

import (
	"context"
	"time"

	"github.com/urfave/cli"
)

// Version of the dynexec driver.
const Version = "v0.1.0"

// NewApp builds the driver's command-line application.
func NewApp(ctx context.Context) *cli.App {
	app := cli.NewApp()
	app.Name = "dynexec"
	app.Usage = "race spawns across local and remote execution strategies"
	app.Version = Version
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "file, f", Usage: "spawn file (YAML)"},
		cli.StringFlag{Name: "workdir", Usage: "directory spawns run in"},
		cli.StringFlag{Name: "output-dir", Usage: "directory for stdout/stderr capture files"},
		cli.IntFlag{Name: "workers", Value: 4, Usage: "size of the branch worker pool"},
		cli.DurationFlag{Name: "local-delay", Value: time.Second, Usage: "local start delay after a remote completion"},
		cli.DurationFlag{Name: "remote-latency", Value: 100 * time.Millisecond, Usage: "artificial latency of the simulated remote strategy"},
		cli.BoolFlag{Name: "debug-scheduler", Usage: "log which strategy wins each race"},
		cli.BoolFlag{Name: "json-logs", Usage: "emit JSON logs"},
	}
	app.Action = cli.ActionFunc(func(c *cli.Context) error {
		inv := Invocation{
			SpawnFile:      c.String("file"),
			WorkDir:        c.String("workdir"),
			OutputDir:      c.String("output-dir"),
			Workers:        c.Int("workers"),
			LocalDelay:     c.Duration("local-delay"),
			RemoteLatency:  c.Duration("remote-latency"),
			DebugScheduler: c.Bool("debug-scheduler"),
			JSONLogs:       c.Bool("json-logs"),
		}
		result, err := Execute(ctx, inv)
		if result.ExitCode == ExitSuccess {
			return nil
		}
		if err != nil {
			return cli.NewExitError(err.Error(), result.ExitCode)
		}
		return cli.NewExitError("", result.ExitCode)
	})
	return app
}
