package linedb

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// Everything the commands need. Filled in before any command runs.
type Environment struct {
	Conf     *Configuration
	Fs       afero.Fs
	Resolver Resolver
	Logger   *zerolog.Logger
}

func (env *Environment) options() *Options {
	return env.Conf.ReaderOptions(env.Resolver, env.Logger)
}

func (env *Environment) catalog() (*Catalog, error) {
	repo, err := NewRepository(env.Conf.Catalog())
	if err != nil {
		return nil, err
	}
	return NewCatalog(repo), nil
}

// Source identifiers from the arguments, then from the manifest, if any
func (env *Environment) sources(args []string, manifest string) ([]string, *Options, error) {
	ids := slices.Clone(args)
	opts := env.options()
	if manifest == "" {
		return ids, opts, nil
	}

	m, err := LoadManifest(env.Fs, manifest)
	if err != nil {
		return nil, nil, err
	}

	mids, err := m.Sources(env.Fs)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to list sources of %s", manifest)
	}

	if opts, err = m.Options(opts); err != nil {
		return nil, nil, err
	}
	return append(ids, mids...), opts, nil
}

func Commands(env *Environment) []*cobra.Command {
	return []*cobra.Command{
		// read databases from their sources
		readCommand(env),
		loadCommand(env),
		// catalog management
		showCommand(env),
		listCommand(env),
		dropCommand(env),
	}
}

type ReadFlags struct {
	Manifest string
	JSON     bool
}

func readCommand(env *Environment) *cobra.Command {
	var f ReadFlags

	cmd := &cobra.Command{
		Use:     "read [source]... [-m manifest] [--json]",
		Short:   "Print the records of a database",
		GroupID: "read",
		Example: `
		$ linedb read words/a.txt words/b.txt
		$ linedb read "jar:file:/opt/app/data.jar!/words/a.txt"
		$ linedb read -m lexicon.manifest --json
		`,
		Long: `
		Reads the sources in order as a single database and prints its records, one per
		line. Sources are paths, file:, http(s): URIs or archive entries (jar: and zip: URIs
		with a '!/' separator). Sources listed by a manifest are read after the arguments.
		A source other than the first that cannot be opened is skipped with a warning.
		`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, opts, err := env.sources(args, f.Manifest)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return errors.New("no sources")
			}

			r, err := Open(ids, opts)
			if err != nil {
				return err
			}
			defer r.Close()

			out := cmd.OutOrStdout()
			if f.JSON {
				records, rerr := r.ReadAll()
				if records == nil {
					records = []string{}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(records); err != nil {
					return errors.Wrap(err, "failed to encode records")
				}
				return rerr
			}

			for record := range r.Records() {
				fmt.Fprintln(out, record)
			}
			return r.Err()
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.Manifest, "manifest", "m", "", "Manifest listing the sources")
	flags.BoolVar(&f.JSON, "json", false, "Print the records as a JSON array")
	return cmd
}

func loadCommand(env *Environment) *cobra.Command {
	var manifest string

	cmd := &cobra.Command{
		Use:     "load name [source]... [-m manifest]",
		Short:   "Read a database and store its records in the catalog",
		GroupID: "read",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			ids, opts, err := env.sources(args[1:], manifest)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return errors.New("no sources")
			}

			r, err := Open(ids, opts)
			if err != nil {
				return err
			}
			defer r.Close()

			records, err := r.ReadAll()
			if err != nil {
				return errors.Wrapf(err, "failed to load %s", name)
			}

			var skipped []string
			for _, s := range r.Skipped() {
				skipped = append(skipped, s.ID)
			}

			c, err := env.catalog()
			if err != nil {
				return err
			}
			defer c.Close()

			if _, err := c.Save(name, ids, skipped, records); err != nil {
				return err
			}

			env.Logger.Info().Str("database", name).Int("records", len(records)).Int("skipped", len(skipped)).Msg("database stored")
			fmt.Fprintf(cmd.OutOrStdout(), "stored %d records in %s\n", len(records), name)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&manifest, "manifest", "m", "", "Manifest listing the sources")
	return cmd
}

func showCommand(env *Environment) *cobra.Command {
	var position int

	cmd := &cobra.Command{
		Use:     "show name [-p position]",
		Short:   "Print the stored records of a database",
		GroupID: "catalog",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := env.catalog()
			if err != nil {
				return err
			}
			defer c.Close()

			out := cmd.OutOrStdout()
			if cmd.Flags().Changed("position") {
				record, err := c.Record(args[0], position)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, record)
				return nil
			}

			records, err := c.Records(args[0])
			if err != nil {
				return err
			}
			for _, record := range records {
				fmt.Fprintln(out, record)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&position, "position", "p", 0, "Only the record at this position, from 0")
	return cmd
}

func listCommand(env *Environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list [pattern]...",
		Short:   "List the stored databases",
		GroupID: "catalog",
		Example: `
		$ linedb list
		$ linedb list "lex*" "words-?"
		`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := env.catalog()
			if err != nil {
				return err
			}
			defer c.Close()

			dbs, err := c.List(args...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-20s | %-8s | %-50s\n", "Name", "Records", "Sources")
			for _, db := range dbs {
				fmt.Fprintf(out, "%-20s | %-8d | %-50s\n", db.Name, db.Records, strings.Join(db.Sources, ", "))
			}
			return nil
		},
	}
	return cmd
}

func dropCommand(env *Environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "drop name...",
		Short:   "Remove stored databases",
		GroupID: "catalog",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := env.catalog()
			if err != nil {
				return err
			}
			defer c.Close()

			for _, name := range args {
				if err := c.Drop(name); err != nil {
					return err
				}
				env.Logger.Info().Str("database", name).Msg("database dropped")
			}
			return nil
		},
	}
	return cmd
}
