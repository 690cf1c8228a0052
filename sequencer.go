// Line-oriented record databases.
//
// A database is an ordered list of sources. A line starting with '-' starts a
// record, a line starting with '/' is a comment, blank lines are dropped and
// any other line continues the current record. The Sequencer opens the
// sources one at a time through a Resolver and chains their lines into a
// single stream; the Reader assembles records out of it:
//
//	r, err := Open([]string{"a.txt", "jar:file:/opt/app.jar!/b.txt"}, nil)
//	for record := range r.Records() { ... }
//
// A source is closed before the next one is opened and is never reopened.
package linedb

import (
	"io"
	"iter"
	"slices"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// An open source. Lines are pulled one by one out of its iterator.
type source struct {
	index  int
	id     string
	stream io.ReadCloser

	next func() (string, error, bool)
	stop func()
}

func openSource(resolver Resolver, index int, id string, maxLine int) (*source, error) {
	stream, err := resolver.Open(id)
	if err != nil {
		return nil, &SourceError{Index: index, ID: id, Err: err}
	}

	next, stop := iter.Pull2(iter.Seq2[string, error](ReadLines(stream, maxLine)))
	return &source{
		index:  index,
		id:     id,
		stream: stream,
		next:   next,
		stop:   stop,
	}, nil
}

func (s *source) close() error {
	s.stop()
	return s.stream.Close()
}

type Sequencer struct {
	resolver Resolver
	ids      []string
	maxLine  int
	logger   zerolog.Logger

	// index of the last source opened (or skipped)
	pos     int
	current *source
	skipped []SourceError
}

// Opens the first source right away. Failing to resolve it is fatal; an
// empty list gives a sequencer that is already at the end.
func OpenSequencer(ids []string, opts *Options) (*Sequencer, error) {
	o := opts.withDefaults()
	s := &Sequencer{
		resolver: o.Resolver,
		ids:      ids,
		maxLine:  o.MaxLineSize,
		logger:   *o.Logger,
	}

	if len(ids) == 0 {
		return s, nil
	}

	src, err := openSource(s.resolver, 0, ids[0], s.maxLine)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open first source")
	}
	s.logger.Debug().Int("source", 0).Str("id", ids[0]).Msg("opened source")
	s.current = src
	return s, nil
}

// Returns the next raw line. When the current source runs out it is closed
// and the next one opened. io.EOF means every source has been read.
// A failure of the current source comes back as a *ReadError.
func (s *Sequencer) Next() (string, error) {
	for s.current != nil {
		line, err, ok := s.current.next()
		if !ok {
			s.advance()
			continue
		}

		if err != nil {
			return "", &ReadError{Index: s.current.index, ID: s.current.id, Err: err}
		}
		return line, nil
	}
	return "", io.EOF
}

// Lines of every source, in order
func (s *Sequencer) Lines() LinesIterator {
	return func(yield func(string, error) bool) {
		for {
			line, err := s.Next()
			if err == io.EOF {
				return
			}
			if !yield(line, err) {
				return
			}
		}
	}
}

// Closes the current source and opens the next one that resolves.
// Sources that cannot be resolved contribute no lines.
func (s *Sequencer) advance() {
	if err := s.closeCurrent(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to close source")
	}

	for s.pos+1 < len(s.ids) {
		s.pos++
		src, err := openSource(s.resolver, s.pos, s.ids[s.pos], s.maxLine)
		if err != nil {
			var serr *SourceError
			if errors.As(err, &serr) {
				s.skipped = append(s.skipped, *serr)
			}
			s.logger.Warn().Err(err).Int("source", s.pos).Str("id", s.ids[s.pos]).Msg("skipping source")
			continue
		}

		s.logger.Debug().Int("source", s.pos).Str("id", s.ids[s.pos]).Msg("opened source")
		s.current = src
		return
	}
}

func (s *Sequencer) closeCurrent() error {
	if s.current == nil {
		return nil
	}

	src := s.current
	s.current = nil
	s.logger.Debug().Int("source", src.index).Str("id", src.id).Msg("closing source")
	return errors.Wrapf(src.close(), "failed to close source %s", src.id)
}

// Releases the source currently open. Nothing else is opened afterwards.
// Calling Close more than once is a no-op.
func (s *Sequencer) Close() error {
	s.pos = len(s.ids)
	return s.closeCurrent()
}

// Sources that were skipped because they could not be resolved
func (s *Sequencer) Skipped() []SourceError {
	return slices.Clone(s.skipped)
}
