package cmd

import (
	"io"
	"os"
	"time"

	"github.com/linedb"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const unset = "-"

type Flags struct {
	Paths  linedb.StandardPaths
	Config string

	LogLevel    string
	Catalog     string
	MaxLineSize int
}

// Root command of the CLI. Diagnostics are written to stderr.
func NewRootCommand(stderr io.Writer) *cobra.Command {
	var f Flags
	env := &linedb.Environment{
		Fs:       afero.NewOsFs(),
		Resolver: linedb.NewResolver(),
	}

	com := &cobra.Command{
		Use:           "linedb",
		Short:         "Read line-oriented record databases",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// 1. bind the paths. Overrides defaults.
			linedb.BindStandardPaths(&f.Paths)
			// 2. load and validate the configuration
			conf, err := linedb.LoadConfiguration(env.Fs, f.Paths, f.Config, cmd.Flags())
			if err != nil {
				return err
			}

			lvl, err := conf.LogLevel()
			if err != nil {
				return err
			}

			logger := zerolog.New(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.Kitchen}).
				Level(lvl).
				With().
				Timestamp().
				Logger()
			log.Logger = logger

			env.Conf = conf
			env.Logger = &logger
			env.Logger.Debug().Str("config", conf.File()).Str("catalog", conf.CatalogPath()).Msg("configuration loaded")
			return nil
		},
	}
	com.SetErr(stderr)

	com.AddGroup(
		&cobra.Group{ID: "read", Title: "Reading databases:"},
		&cobra.Group{ID: "catalog", Title: "Catalog:"},
	)

	// This set of flags propagates
	fl := com.PersistentFlags()

	stdpaths := &f.Paths
	pathFlags := pflag.NewFlagSet("Standard Paths", pflag.ExitOnError)
	pathFlags.StringVar(&stdpaths.LINEDB_APPNAME, "stdpath.app", unset, "App name")
	pathFlags.StringVar(&stdpaths.CONFIG_HOME, "stdpath.config", unset, "Configuration directory")
	pathFlags.StringVar(&stdpaths.STATE_HOME, "stdpath.state", unset, "State directory")
	pathFlags.StringVar(&stdpaths.DATA_HOME, "stdpath.data", unset, "Data directory")
	fl.AddFlagSet(pathFlags)

	// Config flags
	cfgFlags := pflag.NewFlagSet("Configuration", pflag.ExitOnError)
	cfgFlags.StringVar(&f.Config, "config", "", "Path to configuration file")
	cfgFlags.StringVar(&f.LogLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	cfgFlags.StringVar(&f.Catalog, "catalog", "", "Location of the catalog database. '-' keeps it in memory")
	cfgFlags.IntVar(&f.MaxLineSize, "max-line-size", linedb.DefaultMaxLineSize, "Longest line accepted in a source, in bytes")
	fl.AddFlagSet(cfgFlags)

	com.AddCommand(linedb.Commands(env)...)
	return com
}

func Run() error {
	return NewRootCommand(os.Stderr).Execute()
}
