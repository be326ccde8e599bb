package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/appsync/internal/app"
	"github.com/roach88/appsync/internal/config"
	"github.com/roach88/appsync/internal/profiles"
)

// newFormatter builds the formatter every command writes through.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// newLogger returns the slog logger for a command: text on stderr, Debug
// with --verbose and Info otherwise.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

// loadConfig reads --config and applies flag overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, err
	}
	if opts.Database != "" {
		cfg.DB = opts.Database
	}
	if opts.Driver != "" {
		cfg.Driver = opts.Driver
	}
	return cfg, nil
}

// openApp loads configuration and opens the application. Failures are
// written through f and returned as command errors (exit code 2).
func openApp(ctx context.Context, opts *RootOptions, cmd *cobra.Command, f *OutputFormatter) (*app.App, error) {
	logger := newLogger(opts, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	f.VerboseLog("Using database %s (driver %s)", cfg.DB, cfg.Driver)

	a, err := app.Open(ctx, cfg, app.WithLogger(logger))
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	return a, nil
}

// closeApp closes a and logs a close failure.
func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// profileFailure maps a manager error to output and exit codes.
func profileFailure(f *OutputFormatter, message string, err error) error {
	var pe *profiles.Error
	if !errors.As(err, &pe) {
		return f.Fail(ExitFailure, ErrCodeGeneric, message, err)
	}
	switch pe.Kind {
	case profiles.KindNotFound:
		return f.Fail(ExitFailure, ErrCodeNotFound, message, err)
	case profiles.KindInvalidRecord:
		return f.Fail(ExitCommandError, ErrCodeInvalid, message, err)
	case profiles.KindQueryFailure:
		return f.Fail(ExitFailure, ErrCodeQuery, message, err)
	default:
		return f.Fail(ExitFailure, ErrCodeWrite, message, err)
	}
}

// commandContext returns the command's context, or Background when unset.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
