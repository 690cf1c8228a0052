package linedb

import (
	"archive/zip"
	"bytes"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/afero/zipfs"
)

// Separates the archive location from the entry inside it,
// e.g. jar:file:/opt/app.jar!/data/db.txt
const archiveSeparator = "!/"

// Turns a source identifier into an open stream of text.
// The caller owns the returned stream and must close it.
type Resolver interface {
	Open(id string) (io.ReadCloser, error)
}

type ResolverFunc func(id string) (io.ReadCloser, error)

func (f ResolverFunc) Open(id string) (io.ReadCloser, error) {
	return f(id)
}

// Resolves paths, file: and http(s): URIs and entries of zip archives
// (jar: and zip: URIs). Identifiers that do not contain ":/" are paths
// on Fs.
type URLResolver struct {
	// Filesystem for paths and file: URIs
	Fs afero.Fs
	// Client for http: and https: URIs
	Client *http.Client
}

// Resolver over the OS filesystem
func NewResolver() *URLResolver {
	return &URLResolver{
		Fs:     afero.NewOsFs(),
		Client: newNoCacheClient(),
	}
}

// Resolver over packaged resources, e.g. an embed.FS. Names are
// slash-separated and relative to the root of fsys.
func NewFSResolver(fsys fs.FS) *URLResolver {
	return &URLResolver{
		Fs:     afero.FromIOFS{FS: fsys},
		Client: newNoCacheClient(),
	}
}

// Connections are not kept around once a body has been read
func newNoCacheClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			DisableKeepAlives: true,
		},
	}
}

func (r *URLResolver) fs() afero.Fs {
	if r.Fs == nil {
		return afero.NewOsFs()
	}
	return r.Fs
}

func (r *URLResolver) client() *http.Client {
	if r.Client == nil {
		return newNoCacheClient()
	}
	return r.Client
}

func (r *URLResolver) Open(id string) (io.ReadCloser, error) {
	if !strings.Contains(id, ":/") {
		return r.openPath(id)
	}

	scheme, rest, _ := strings.Cut(id, ":")
	switch strings.ToLower(scheme) {
	case "file":
		u, err := url.Parse(id)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid file URI %s", id)
		}
		return r.openPath(u.Path)
	case "http", "https":
		return r.openURL(id)
	case "jar", "zip":
		return r.openArchive(id, rest)
	default:
		return nil, errors.Wrapf(ErrUnsupportedSource, "scheme %q in %s", scheme, id)
	}
}

func (r *URLResolver) openPath(fpath string) (io.ReadCloser, error) {
	f, err := r.fs().Open(fpath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", fpath)
	}

	info, err := f.Stat()
	if err == nil && info.IsDir() {
		_ = f.Close()
		return nil, errors.Errorf("%s is a directory", fpath)
	}
	return f, nil
}

func (r *URLResolver) openURL(id string) (io.ReadCloser, error) {
	req, err := http.NewRequest(http.MethodGet, id, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid URL %s", id)
	}

	// always fetch fresh content and release the connection with the body
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Close = true

	resp, err := r.client().Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch %s", id)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, errors.Errorf("failed to fetch %s: unexpected status %s", id, resp.Status)
	}
	return resp.Body, nil
}

func (r *URLResolver) openArchive(id, location string) (io.ReadCloser, error) {
	archive, entry, ok := strings.Cut(location, archiveSeparator)
	if !ok || entry == "" {
		return nil, errors.Wrapf(ErrUnsupportedSource, "no archive entry in %s", id)
	}

	zr, closer, err := r.openZip(archive)
	if err != nil {
		return nil, err
	}

	f, err := zipfs.New(zr).Open(entry)
	if err != nil {
		_ = closer.Close()
		return nil, errors.Wrapf(err, "failed to open entry %s in %s", entry, archive)
	}
	return &archiveEntry{entry: f, archive: closer}, nil
}

// Opens a zip archive. The closer releases whatever backs the reader.
func (r *URLResolver) openZip(archive string) (*zip.Reader, io.Closer, error) {
	fpath := archive
	if strings.Contains(archive, ":/") {
		u, err := url.Parse(archive)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "invalid archive URI %s", archive)
		}
		if !strings.EqualFold(u.Scheme, "file") {
			return r.openRemoteZip(archive)
		}
		fpath = u.Path
	}

	f, err := r.fs().Open(fpath)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open archive %s", fpath)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, errors.Wrapf(err, "failed to stat archive %s", fpath)
	}

	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		_ = f.Close()
		return nil, nil, errors.Wrapf(err, "failed to read archive %s", fpath)
	}
	return zr, f, nil
}

// zip needs random access, so remote archives are read in full
func (r *URLResolver) openRemoteZip(archive string) (*zip.Reader, io.Closer, error) {
	rc, err := r.Open(archive)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		_ = rc.Close()
	}()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to download archive %s", archive)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to read archive %s", archive)
	}
	return zr, io.NopCloser(bytes.NewReader(data)), nil
}

// An open entry of an archive. Closing it releases the archive too.
type archiveEntry struct {
	entry   afero.File
	archive io.Closer
}

func (e *archiveEntry) Read(p []byte) (int, error) {
	return e.entry.Read(p)
}

func (e *archiveEntry) Close() error {
	err := e.entry.Close()
	if aerr := e.archive.Close(); err == nil {
		err = aerr
	}
	return err
}

// Lists the files matching the glob patterns, pattern by pattern. Matches
// of a single pattern are sorted; a file matched twice is listed once.
func Enumerate(fsys afero.Fs, patterns ...string) ([]string, error) {
	var (
		found []string
		seen  = make(map[string]struct{})
	)

	for _, pattern := range patterns {
		matches, err := afero.Glob(fsys, pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid glob pattern %s", pattern)
		}
		slices.Sort(matches)

		for _, match := range matches {
			if _, ok := seen[match]; ok {
				continue
			}

			info, err := fsys.Stat(match)
			if err != nil || info.IsDir() {
				continue // we cannot stat this, or is a dir
			}

			seen[match] = struct{}{}
			found = append(found, match)
		}
	}
	return found, nil
}
