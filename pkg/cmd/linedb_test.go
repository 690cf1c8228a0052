package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/linedb"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cli struct {
	dir string
}

func newCLI(t *testing.T, files map[string]string) *cli {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return &cli{dir: dir}
}

func (c *cli) path(name string) string {
	return filepath.Join(c.dir, name)
}

func (c *cli) run(args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer

	com := NewRootCommand(&stderr)
	com.SetOut(&stdout)
	com.SetArgs(append([]string{
		"--stdpath.config", c.path("config"),
		"--stdpath.state", c.path("state"),
		"--stdpath.data", c.path("data"),
		"--catalog", c.path("catalog.db"),
	}, args...))

	err := com.Execute()
	return stdout.String(), stderr.String(), err
}

var lexicon = map[string]string{
	"a.txt": "/ header\n-Entry One\n Continued line\n\n-Entry Two\n",
	"b.txt": "-Entry Three\n Smth\n Content",
}

func TestRead(t *testing.T) {
	c := newCLI(t, lexicon)

	out, _, err := c.run("read", c.path("a.txt"), c.path("b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Entry One  Continued line\nEntry Two\nEntry Three  Smth  Content\n", out)
}

func TestRead_JSON(t *testing.T) {
	c := newCLI(t, lexicon)

	out, _, err := c.run("read", "--json", c.path("b.txt"))
	require.NoError(t, err)
	assert.JSONEq(t, `["Entry Three  Smth  Content"]`, out)
}

func TestRead_Sources(t *testing.T) {
	c := newCLI(t, lexicon)

	out, stderr, err := c.run("read", c.path("a.txt"), c.path("missing.txt"), c.path("b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Entry One  Continued line\nEntry Two\nEntry Three  Smth  Content\n", out)
	assert.Contains(t, stderr, "skipping source")

	_, _, err = c.run("read", c.path("missing.txt"), c.path("a.txt"))
	assert.Error(t, err)

	_, _, err = c.run("read")
	assert.Error(t, err)
}

func TestRead_Manifest(t *testing.T) {
	c := newCLI(t, map[string]string{
		"1.db": "*first\n# comment\n-continued",
		"2.db": "*second",
	})
	manifest := c.path("lexicon.manifest")
	require.NoError(t, os.WriteFile(manifest, []byte(`
record = "*"
comment = "#"
glob "`+filepath.ToSlash(c.path("*.db"))+`"
`), 0o644))

	out, _, err := c.run("read", "-m", manifest)
	require.NoError(t, err)
	assert.Equal(t, "first -continued\nsecond\n", out)
}

func TestCatalogCommands(t *testing.T) {
	c := newCLI(t, lexicon)

	out, _, err := c.run("load", "lexicon", c.path("a.txt"), c.path("b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "stored 3 records in lexicon\n", out)

	out, _, err = c.run("show", "lexicon")
	require.NoError(t, err)
	assert.Equal(t, "Entry One  Continued line\nEntry Two\nEntry Three  Smth  Content\n", out)

	out, _, err = c.run("show", "lexicon", "-p", "1")
	require.NoError(t, err)
	assert.Equal(t, "Entry Two\n", out)

	out, _, err = c.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, "lexicon")
	assert.Contains(t, out, "| 3 ")

	_, _, err = c.run("drop", "lexicon")
	require.NoError(t, err)

	_, _, err = c.run("show", "lexicon")
	assert.True(t, errors.Is(err, linedb.ErrNotFound))

	_, _, err = c.run("drop", "lexicon")
	assert.True(t, errors.Is(err, linedb.ErrNotFound))
}

func TestInvalidLogLevel(t *testing.T) {
	c := newCLI(t, lexicon)

	_, _, err := c.run("--log-level", "loud", "read", c.path("a.txt"))
	assert.Error(t, err)
}
