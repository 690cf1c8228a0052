package linedb

import (
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/alecthomas/participle/v2"
	"github.com/linedb/pkg/ast"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Source entry of a manifest
type ManifestEntry struct {
	// Expand Location with Enumerate instead of using it as is
	Glob     bool
	Location string
}

// Manifest names a database and lists its sources in order.
//
//	// lexicon
//	name = "lexicon"
//	record = "-"
//	src "words/a.txt"
//	glob "words/extra/*.txt"
type Manifest struct {
	Name    string
	Entries []ManifestEntry

	// Zero when the manifest keeps the default
	RecordMarker  rune
	CommentMarker rune
}

type manifestParser struct {
	parser *participle.Parser[ast.Manifest]
}

func newManifestParser() *manifestParser {
	p := participle.MustBuild[ast.Manifest](
		participle.Unquote("String", "Char", "RawString"),
		participle.Union[ast.Value](ast.String{}, ast.Number{}),
		participle.UseLookahead(2),
	)

	return &manifestParser{parser: p}
}

var defaultManifestParser = newManifestParser()

// Parses a manifest. fname is used in error messages and, without its
// extension, as the database name when the manifest does not set one.
func ParseManifest(fname string, r io.Reader) (*Manifest, error) {
	return defaultManifestParser.Parse(fname, r)
}

// Reads and parses the manifest at path
func LoadManifest(fsys afero.Fs, path string) (*Manifest, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open manifest %s", path)
	}
	defer f.Close()

	return ParseManifest(path, f)
}

func (p *manifestParser) Parse(fname string, r io.Reader) (*Manifest, error) {
	m, err := p.parser.Parse(fname, r)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse manifest %s", fname)
	}
	return p.bind(fname, m)
}

// Converts the AST manifest to a Manifest
func (p *manifestParser) bind(fname string, m *ast.Manifest) (*Manifest, error) {
	base := filepath.Base(fname)
	manifest := &Manifest{
		Name: strings.TrimSuffix(base, filepath.Ext(base)),
	}

	for _, stmt := range m.Statements {
		if entry := stmt.Entry; entry != nil {
			manifest.Entries = append(manifest.Entries, ManifestEntry{
				Glob:     entry.Kind == "glob",
				Location: entry.Location,
			})
			continue
		}

		prop := stmt.Property
		v, ok := prop.Value.(ast.String)
		if !ok {
			return nil, errors.Errorf("%s: %s must be a string", prop.Pos, prop.Key)
		}

		switch prop.Key {
		case "name":
			if strings.TrimSpace(v.String) == "" {
				return nil, errors.Errorf("%s: empty name", prop.Pos)
			}
			manifest.Name = v.String
		case "record", "comment":
			marker, err := parseMarker(v.String)
			if err != nil {
				return nil, errors.Wrapf(err, "%s: %s", prop.Pos, prop.Key)
			}
			if prop.Key == "record" {
				manifest.RecordMarker = marker
			} else {
				manifest.CommentMarker = marker
			}
		default:
			return nil, errors.Errorf("%s: unknown property %q", prop.Pos, prop.Key)
		}
	}
	return manifest, nil
}

func parseMarker(s string) (rune, error) {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || size != len(s) {
		return 0, errors.Wrapf(ErrInvalidMarker, "%q is not a single character", s)
	}
	return r, nil
}

// Source identifiers in manifest order. Glob entries are expanded on fsys;
// the others are returned as written.
func (m *Manifest) Sources(fsys afero.Fs) ([]string, error) {
	var ids []string
	for _, entry := range m.Entries {
		if !entry.Glob {
			ids = append(ids, entry.Location)
			continue
		}

		matches, err := Enumerate(fsys, entry.Location)
		if err != nil {
			return nil, err
		}
		ids = append(ids, matches...)
	}
	return ids, nil
}

// Copy of base with the manifest markers applied
func (m *Manifest) Options(base *Options) (*Options, error) {
	var o Options
	if base != nil {
		o = *base
	}

	if m.RecordMarker != 0 {
		o.RecordMarker = m.RecordMarker
	}
	if m.CommentMarker != 0 {
		o.CommentMarker = m.CommentMarker
	}

	if err := o.withDefaults().validate(); err != nil {
		return nil, errors.Wrapf(err, "manifest %s", m.Name)
	}
	return &o, nil
}
