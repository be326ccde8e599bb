package cli

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/appsync/internal/profile"
)

// InitResult is the output of the init command.
type InitResult struct {
	Database   string `json:"database"`
	Driver     string `json:"driver"`
	ReplicaID  string `json:"replica_id"`
	Scope      string `json:"scope"`
	Collection string `json:"collection"`
	State      string `json:"state"`
	Seeded     bool   `json:"seeded"`
	SeedSaved  int    `json:"seed_saved"`
	SeedError  string `json:"seed_error,omitempty"`
	Count      int    `json:"count"`
}

// ListResult is the output of the list command.
type ListResult struct {
	Count    int               `json:"count"`
	Profiles []profile.Profile `json:"profiles"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database and seed an empty collection",
		Long: `Open (or create) the database, ensure the profile collection exists and
seed it when it is empty. Running init again never reseeds.

Example:
  appsync init --db ./profiles.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(rootOpts, cmd)
		},
	}
}

func runInit(opts *RootOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	f := newFormatter(opts, cmd)

	a, err := openApp(ctx, opts, cmd, f)
	if err != nil {
		return err
	}
	defer closeApp(a)

	m := a.Profiles()
	n, err := m.Count(ctx)
	if err != nil {
		return profileFailure(f, "failed to count profiles", err)
	}

	report := m.LastSeed()
	result := InitResult{
		Database:   a.Config().DB,
		Driver:     a.Store().Driver(),
		ReplicaID:  a.Store().ReplicaID(),
		Scope:      m.Scope(),
		Collection: m.Collection(),
		State:      m.State().String(),
		Seeded:     report.Seeded,
		SeedSaved:  report.Saved,
		Count:      n,
	}
	if report.Err != nil {
		result.SeedError = report.Err.Error()
	}

	return f.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "Database: %s (%s)\n", result.Database, result.Driver)
		fmt.Fprintf(w, "Collection: %s.%s\n", result.Scope, result.Collection)
		switch {
		case result.SeedError != "":
			fmt.Fprintf(w, "Seeding failed after %d profile(s): %s\n", result.SeedSaved, result.SeedError)
		case result.Seeded:
			fmt.Fprintf(w, "Seeded %d profile(s)\n", result.SeedSaved)
		default:
			fmt.Fprintln(w, "Collection already populated, seeding skipped")
		}
		fmt.Fprintf(w, "Profiles: %d\n", result.Count)
	})
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all profiles",
		Long: `List every profile in the collection, ordered by id.

Examples:
  appsync list
  appsync list --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(rootOpts, cmd)
		},
	}
}

func runList(opts *RootOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	f := newFormatter(opts, cmd)

	a, err := openApp(ctx, opts, cmd, f)
	if err != nil {
		return err
	}
	defer closeApp(a)

	all, err := a.Profiles().GetAll(ctx)
	if err != nil {
		return profileFailure(f, "failed to list profiles", err)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	result := ListResult{Count: len(all), Profiles: all}
	return f.Success(result, func(w io.Writer) {
		if len(all) == 0 {
			fmt.Fprintln(w, "No profiles.")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tTITLE\tEMAIL")
		for _, p := range all {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Title, p.Email)
		}
		tw.Flush()
	})
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one profile",
		Long: `Show the profile with the given id. Exits 1 if it does not exist.

Example:
  appsync get EMP0001 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(rootOpts, args[0], cmd)
		},
	}
}

func runGet(opts *RootOptions, id string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	f := newFormatter(opts, cmd)

	a, err := openApp(ctx, opts, cmd, f)
	if err != nil {
		return err
	}
	defer closeApp(a)

	p, err := a.Profiles().Get(ctx, id)
	if err != nil {
		return profileFailure(f, fmt.Sprintf("failed to get profile %s", id), err)
	}
	return f.Success(p, func(w io.Writer) { writeProfile(w, p) })
}

// SaveOptions holds flags for the save command.
type SaveOptions struct {
	*RootOptions
	Name  string
	Title string
	Email string
}

// NewSaveCommand creates the save command.
func NewSaveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SaveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "save <id>",
		Short: "Create or replace a profile",
		Long: `Create the profile with the given id, or replace it entirely.
Fields not given are stored empty; nothing of an earlier version is kept.

Example:
  appsync save EMP0010 --name "Ana Lima" --title Nurse --email ana.lima@acme.com`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSave(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Title, "title", "", "job title")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")

	return cmd
}

func runSave(opts *SaveOptions, id string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	f := newFormatter(opts.RootOptions, cmd)

	a, err := openApp(ctx, opts.RootOptions, cmd, f)
	if err != nil {
		return err
	}
	defer closeApp(a)

	p := profile.Profile{ID: id, Name: opts.Name, Title: opts.Title, Email: opts.Email}
	if err := a.Profiles().Save(ctx, p); err != nil {
		return profileFailure(f, fmt.Sprintf("failed to save profile %s", id), err)
	}
	return f.Success(p, func(w io.Writer) {
		fmt.Fprintf(w, "Saved %s\n", p.ID)
		if opts.Verbose {
			writeProfile(w, p)
		}
	})
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a profile",
		Long: `Delete the profile with the given id. Deleting an id that does not exist
succeeds.

Example:
  appsync delete EMP0003`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(rootOpts, args[0], cmd)
		},
	}
}

func runDelete(opts *RootOptions, id string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	f := newFormatter(opts, cmd)

	a, err := openApp(ctx, opts, cmd, f)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if err := a.Profiles().Delete(ctx, id); err != nil {
		return profileFailure(f, fmt.Sprintf("failed to delete profile %s", id), err)
	}
	return f.Success(map[string]string{"deleted": id}, func(w io.Writer) {
		fmt.Fprintf(w, "Deleted %s\n", id)
	})
}

func writeProfile(w io.Writer, p profile.Profile) {
	fmt.Fprintf(w, "ID:    %s\n", p.ID)
	fmt.Fprintf(w, "Name:  %s\n", p.Name)
	fmt.Fprintf(w, "Title: %s\n", p.Title)
	fmt.Fprintf(w, "Email: %s\n", p.Email)
}

