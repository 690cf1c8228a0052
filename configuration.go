package linedb

import (
	"os"
	"path"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Standard paths to use to store linedb related data
// https://specifications.freedesktop.org/basedir-spec/latest/
type StandardPaths struct {
	// Can be used to change the profile
	// Default: "linedb"
	LINEDB_APPNAME string
	// Path to configuration directory.
	// Default: "$XDG_CONFIG_HOME/$LINEDB_APPNAME" or "$HOME/.config/$LINEDB_APPNAME" if unset
	CONFIG_HOME string
	// Path to state directory
	// Default: "$XDG_STATE_HOME/$LINEDB_APPNAME" or "$HOME/.local/state/$LINEDB_APPNAME" if unset
	STATE_HOME string
	// Path to data directory
	// Default: "$XDG_DATA_HOME/$LINEDB_APPNAME" or "$HOME/.local/share/$LINEDB_APPNAME"
	DATA_HOME string
}

func (s StandardPaths) init(fsys afero.Fs) error {
	for _, p := range []string{s.CONFIG_HOME, s.STATE_HOME, s.DATA_HOME} {
		if err := fsys.MkdirAll(p, 0700); err != nil {
			return errors.Wrapf(err, "failed to create standard path: %s", p)
		}
	}
	return nil
}

type stdpathsBuilder struct {
	stdpaths *StandardPaths
	home     string

	app    string
	config string
	state  string
	data   string
}

func newStdpathsBuilder() *stdpathsBuilder {
	return &stdpathsBuilder{home: os.Getenv("HOME")}
}

func (b *stdpathsBuilder) withStdpaths(stdpaths *StandardPaths) *stdpathsBuilder {
	bcp := *b
	bcp.stdpaths = stdpaths
	return &bcp
}

func (b *stdpathsBuilder) isValid(val string) bool {
	return !slices.Contains([]string{"", "-"}, val)
}

func (b *stdpathsBuilder) bind(val, env, def string) string {
	if b.isValid(val) {
		return val
	}
	if v := os.Getenv(env); b.isValid(v) {
		return v
	}
	return def
}

func (b *stdpathsBuilder) bindToApp(val, env, def string) string {
	v := b.bind(val, env, def)
	if v == val {
		return val
	}
	return path.Join(v, b.app)
}

func (b *stdpathsBuilder) setApp(val string) *stdpathsBuilder {
	b.app = b.bind(val, "LINEDB_APPNAME", "linedb")
	return b
}

func (b *stdpathsBuilder) setConfig(val string) *stdpathsBuilder {
	b.config = b.bindToApp(val, "XDG_CONFIG_HOME", path.Join(b.home, ".config"))
	return b
}

func (b *stdpathsBuilder) setState(val string) *stdpathsBuilder {
	b.state = b.bindToApp(val, "XDG_STATE_HOME", path.Join(b.home, ".local", "state"))
	return b
}

func (b *stdpathsBuilder) setData(val string) *stdpathsBuilder {
	b.data = b.bindToApp(val, "XDG_DATA_HOME", path.Join(b.home, ".local", "share"))
	return b
}

func (b *stdpathsBuilder) build() *StandardPaths {
	stdpaths := b.stdpaths
	stdpaths.LINEDB_APPNAME = b.app
	stdpaths.CONFIG_HOME = b.config
	stdpaths.STATE_HOME = b.state
	stdpaths.DATA_HOME = b.data
	return stdpaths
}

// Fills the unset standard paths from the environment, or the XDG defaults
func BindStandardPaths(stdpaths *StandardPaths) *StandardPaths {
	b := newStdpathsBuilder().withStdpaths(stdpaths)
	return b.setApp(stdpaths.LINEDB_APPNAME).
		setConfig(stdpaths.CONFIG_HOME).
		setData(stdpaths.DATA_HOME).
		setState(stdpaths.STATE_HOME).
		build()
}

// Configuration keys. In the environment they are prefixed with LINEDB_
// and use underscores, e.g. LINEDB_CATALOG_PATH.
const (
	keyLogLevel    = "log.level"
	keyCatalogPath = "catalog.path"
	keyMaxLineSize = "read.max_line_size"
)

// Flags that override a configuration key when set
var flagKeys = map[string]string{
	"log-level":     keyLogLevel,
	"catalog":       keyCatalogPath,
	"max-line-size": keyMaxLineSize,
}

type Configuration struct {
	paths StandardPaths
	v     *viper.Viper
}

// Returns the location where we store the catalog and other data
func (c *Configuration) Home() string {
	return c.paths.DATA_HOME
}

// Config file in use, empty when running on defaults and environment only
func (c *Configuration) File() string {
	return c.v.ConfigFileUsed()
}

func (c *Configuration) CatalogPath() string {
	return c.v.GetString(keyCatalogPath)
}

func (c *Configuration) MaxLineSize() int {
	return c.v.GetInt(keyMaxLineSize)
}

func (c *Configuration) LogLevel() (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.v.GetString(keyLogLevel)))
	if err != nil {
		return zerolog.NoLevel, errors.Wrapf(err, "invalid log level %q", c.v.GetString(keyLogLevel))
	}
	return lvl, nil
}

// Reader options carrying the configured limits
func (c *Configuration) ReaderOptions(resolver Resolver, logger *zerolog.Logger) *Options {
	return &Options{
		Resolver:    resolver,
		Logger:      logger,
		MaxLineSize: c.MaxLineSize(),
	}
}

func (c *Configuration) Catalog() DatabaseConfiguration {
	return DatabaseConfiguration{Path: c.CatalogPath()}
}

// Creates the standard paths and reads the configuration. file is an
// explicit config file; when empty, config.{yaml,toml,json} is looked up in
// CONFIG_HOME and may be missing. Flags in flags that were set override the
// file and the environment.
func LoadConfiguration(fsys afero.Fs, stdpaths StandardPaths, file string, flags *pflag.FlagSet) (*Configuration, error) {
	// initialize paths
	if err := stdpaths.init(fsys); err != nil {
		return nil, errors.Wrap(err, "failed to initialize standard paths")
	}

	v := viper.New()
	v.SetFs(fsys)
	v.SetEnvPrefix("LINEDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyCatalogPath, path.Join(stdpaths.DATA_HOME, "catalog.db"))
	v.SetDefault(keyMaxLineSize, DefaultMaxLineSize)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(stdpaths.CONFIG_HOME)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read configuration")
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Wrapf(err, "failed to bind flag %s", name)
				}
			}
		}
	}

	return &Configuration{paths: stdpaths, v: v}, nil
}
