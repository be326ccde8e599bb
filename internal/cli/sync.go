package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/appsync/internal/app"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass and exit",
		Long: `Push local changes to the configured remote, pull remote changes and
apply them, then exit. Requires sync.enabled in the config file.

Example:
  appsync sync --config appsync.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, cmd)
		},
	}
}

func runSync(opts *RootOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	f := newFormatter(opts, cmd)

	a, err := openApp(ctx, opts, cmd, f)
	if err != nil {
		return err
	}
	defer closeApp(a)

	st, err := a.SyncOnce(ctx)
	if errors.Is(err, app.ErrSyncDisabled) {
		return f.Fail(ExitCommandError, ErrCodeSync, "sync is not enabled in the config", err)
	}
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeSync, "sync pass failed", err)
	}

	return f.Success(st, func(w io.Writer) {
		fmt.Fprintf(w, "Synced with %s: pushed %d, pulled %d, applied %d\n",
			a.Remote().Name(), st.Pushed, st.Pulled, st.Applied)
	})
}
