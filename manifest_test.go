package linedb

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manifestTester struct {
	manifest string
	expected *Manifest
	// parsing is expected to fail
	invalid bool
}

func (tt *manifestTester) runTest(t *testing.T) {
	m, err := ParseManifest("lexicon.db", strings.NewReader(tt.manifest))
	if tt.invalid {
		assert.Error(t, err)
		return
	}

	require.NoError(t, err)
	assert.Equal(t, tt.expected, m)
}

var manifestTests = map[string]*manifestTester{
	"full": {
		manifest: `
// lexicon manifest
name = "words"
record = "-"
comment = '#'
src "words/a.txt"
glob "words/extra/*.txt"
src "jar:file:/opt/app/data.jar!/words/b.txt"
`,
		expected: &Manifest{
			Name: "words",
			Entries: []ManifestEntry{
				{Location: "words/a.txt"},
				{Glob: true, Location: "words/extra/*.txt"},
				{Location: "jar:file:/opt/app/data.jar!/words/b.txt"},
			},
			RecordMarker:  '-',
			CommentMarker: '#',
		},
	},
	"name from file": {
		manifest: `src "a.txt"`,
		expected: &Manifest{
			Name:    "lexicon",
			Entries: []ManifestEntry{{Location: "a.txt"}},
		},
	},
	"empty": {
		manifest: "// nothing here\n",
		expected: &Manifest{Name: "lexicon"},
	},
	"raw string": {
		manifest: "glob `C:/data/*.txt`",
		expected: &Manifest{
			Name:    "lexicon",
			Entries: []ManifestEntry{{Glob: true, Location: "C:/data/*.txt"}},
		},
	},
	"multibyte marker": {
		manifest: `record = "»"`,
		expected: &Manifest{Name: "lexicon", RecordMarker: '»'},
	},
	"unknown property": {
		manifest: `kind = "text"`,
		invalid:  true,
	},
	"number marker": {
		manifest: `record = 5`,
		invalid:  true,
	},
	"identifier value": {
		manifest: `name = lexicon`,
		invalid:  true,
	},
	"long marker": {
		manifest: `record = "--"`,
		invalid:  true,
	},
	"empty marker": {
		manifest: `comment = ""`,
		invalid:  true,
	},
	"empty name": {
		manifest: `name = "  "`,
		invalid:  true,
	},
	"unquoted source": {
		manifest: `src words`,
		invalid:  true,
	},
	"unknown entry": {
		manifest: `include "a.txt"`,
		invalid:  true,
	},
}

func TestParseManifest(t *testing.T) {
	for name, tt := range manifestTests {
		t.Run(name, tt.runTest)
	}
}

func TestManifest_Sources(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, name := range []string{"/db/extra/2.txt", "/db/extra/1.txt", "/db/main.txt"} {
		require.NoError(t, afero.WriteFile(fs, name, []byte("-x"), 0o644))
	}
	require.NoError(t, afero.WriteFile(fs, "/db/lexicon.manifest", []byte(`
src "/db/main.txt"
glob "/db/extra/*.txt"
glob "/db/none/*.txt"
src "https://example.org/words.txt"
`), 0o644))

	m, err := LoadManifest(fs, "/db/lexicon.manifest")
	require.NoError(t, err)
	assert.Equal(t, "lexicon", m.Name)

	ids, err := m.Sources(fs)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/db/main.txt",
		"/db/extra/1.txt",
		"/db/extra/2.txt",
		"https://example.org/words.txt",
	}, ids)

	_, err = LoadManifest(fs, "/db/missing.manifest")
	assert.Error(t, err)
}

func TestManifest_Options(t *testing.T) {
	base := testOptions(nil)
	base.MaxLineSize = 64

	m := &Manifest{Name: "lexicon", RecordMarker: '*'}
	o, err := m.Options(base)
	require.NoError(t, err)
	assert.Equal(t, '*', o.RecordMarker)
	assert.Equal(t, rune(0), o.CommentMarker)
	assert.Equal(t, 64, o.MaxLineSize)
	assert.Equal(t, rune(0), base.RecordMarker)

	// clashes with the default comment marker
	m = &Manifest{Name: "lexicon", RecordMarker: '/'}
	_, err = m.Options(base)
	assert.True(t, errors.Is(err, ErrInvalidMarker))
}

func TestManifest_Read(t *testing.T) {
	resolver := memResolver(t, map[string]string{
		"/db/a.txt": "*first\n# note\nmore",
		"/db/b.txt": "-not a record\n*second",
	})

	m, err := ParseManifest("db.manifest", strings.NewReader(`
record = "*"
comment = "#"
glob "/db/*.txt"
`))
	require.NoError(t, err)

	ids, err := m.Sources(resolver.Fs)
	require.NoError(t, err)

	o, err := m.Options(testOptions(resolver))
	require.NoError(t, err)

	r, err := Open(ids, o)
	require.NoError(t, err)
	defer r.Close()

	records, err := r.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"first more -not a record", "second"}, records)
}
