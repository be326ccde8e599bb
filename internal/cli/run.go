package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/appsync/internal/changefeed"
)

// EventLine is one streamed change in run output.
type EventLine struct {
	Op     string `json:"op"`
	ID     string `json:"id"`
	Seq    int64  `json:"seq"`
	Origin string `json:"origin"`
	Local  bool   `json:"local"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Initialize, start sync and stream changes",
		Long: `Initialize the collection, start the sync coordinator when sync is
enabled, and print every committed change until interrupted.

Example:
  appsync run --config appsync.yaml --format json
  appsync run --db /tmp/profiles.db --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, cmd)
		},
	}
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	f := newFormatter(opts, cmd)
	a, err := openApp(ctx, opts, cmd, f)
	if err != nil {
		return err
	}
	defer closeApp(a)

	m := a.Profiles()
	events, stop := m.Watch()
	defer stop()

	if h := a.StartSync(ctx); h != nil {
		slog.Info("sync started", "remote", a.Remote().Name(), "interval", a.Config().Sync.Interval)
	}

	f.VerboseLog("Watching %s.%s. Press Ctrl-C to stop.", m.Scope(), m.Collection())

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopped gracefully")
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if err := f.Line(eventLine(e), eventText(e)); err != nil {
				return WrapExitError(ExitFailure, "failed to write event", err)
			}
		}
	}
}

func eventLine(e changefeed.Event) EventLine {
	return EventLine{Op: string(e.Op), ID: e.ID, Seq: e.Seq, Origin: e.Origin, Local: e.Local}
}

func eventText(e changefeed.Event) string {
	where := "remote"
	if e.Local {
		where = "local"
	}
	return fmt.Sprintf("%-6s %s (seq %d, %s)", e.Op, e.ID, e.Seq, where)
}
