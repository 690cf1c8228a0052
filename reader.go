package linedb

import (
	"io"
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// First character of the line that starts a record
	DefaultRecordMarker = '-'
	// First character of a comment line
	DefaultCommentMarker = '/'
)

type Options struct {
	// Opens the sources. Defaults to NewResolver()
	Resolver Resolver
	// Diagnostics go here. Defaults to the global logger
	Logger *zerolog.Logger
	// Defaults to DefaultRecordMarker
	RecordMarker rune
	// Defaults to DefaultCommentMarker
	CommentMarker rune
	// Longest physical line accepted. Defaults to DefaultMaxLineSize
	MaxLineSize int
}

// Returns a copy with every unset option filled in
func (o *Options) withDefaults() *Options {
	var c Options
	if o != nil {
		c = *o
	}

	if c.Resolver == nil {
		c.Resolver = NewResolver()
	}
	if c.Logger == nil {
		c.Logger = &log.Logger
	}
	if c.RecordMarker == 0 {
		c.RecordMarker = DefaultRecordMarker
	}
	if c.CommentMarker == 0 {
		c.CommentMarker = DefaultCommentMarker
	}
	if c.MaxLineSize <= 0 {
		c.MaxLineSize = DefaultMaxLineSize
	}
	return &c
}

func (o *Options) validate() error {
	for _, m := range []rune{o.RecordMarker, o.CommentMarker} {
		if !utf8.ValidRune(m) || m == utf8.RuneError || strings.TrimSpace(string(m)) == "" {
			return errors.Wrapf(ErrInvalidMarker, "%q", m)
		}
	}

	if o.RecordMarker == o.CommentMarker {
		return errors.Wrapf(ErrInvalidMarker, "record and comment markers are both %q", o.RecordMarker)
	}
	return nil
}

type stateKind uint8

const (
	// Nothing looked ahead yet
	stateEmpty stateKind = iota
	// The line that starts the next record is held
	stateBuffered
	// No more records. Never left once entered
	stateExhausted
)

// Lookahead of the reader. line is only meaningful when Buffered.
type state struct {
	kind stateKind
	line string
}

func emptyState() state { return state{kind: stateEmpty} }
func bufferedState(line string) state { return state{kind: stateBuffered, line: line} }
func exhaustedState() state { return state{kind: stateExhausted} }

type lineKind uint8

const (
	blankLine lineKind = iota
	commentLine
	recordLine
	continuationLine
)

// Reader assembles the records of a database. Records are returned one at
// a time with their physical lines joined by single spaces.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	seq    *Sequencer
	logger zerolog.Logger

	record  rune
	comment rune

	state state
	err   error
}

// Opens the sources and positions the reader on the first record.
// Only failing to open the first source is an error.
func Open(ids []string, opts *Options) (*Reader, error) {
	o := opts.withDefaults()
	if err := o.validate(); err != nil {
		return nil, err
	}

	seq, err := OpenSequencer(ids, o)
	if err != nil {
		return nil, err
	}
	return newReader(seq, o), nil
}

// Reader over the lines of an already open sequencer. The reader takes
// ownership of seq. Invalid markers in opts fall back to the defaults.
func NewReader(seq *Sequencer, opts *Options) *Reader {
	o := opts.withDefaults()
	if err := o.validate(); err != nil {
		o.Logger.Warn().Err(err).Msg("using default markers")
		o.RecordMarker, o.CommentMarker = DefaultRecordMarker, DefaultCommentMarker
	}
	return newReader(seq, o)
}

func newReader(seq *Sequencer, o *Options) *Reader {
	r := &Reader{
		seq:     seq,
		logger:  *o.Logger,
		record:  o.RecordMarker,
		comment: o.CommentMarker,
		state:   emptyState(),
	}
	r.prime()
	return r
}

// Skips everything up to the first record-start line
func (r *Reader) prime() {
	for r.state.kind == stateEmpty {
		line, err := r.seq.Next()
		switch {
		case err == io.EOF:
			r.state = exhaustedState()
		case err != nil:
			r.abort(err)
		case r.classify(line) == recordLine:
			r.state = bufferedState(line)
		}
	}
}

func (r *Reader) classify(line string) lineKind {
	if strings.TrimSpace(line) == "" {
		return blankLine
	}

	first, _ := utf8.DecodeRuneInString(line)
	switch first {
	case r.comment:
		return commentLine
	case r.record:
		return recordLine
	default:
		return continuationLine
	}
}

// Returns the next record, or io.EOF once there are no more. io.EOF is
// also returned when a read failure ended the session; Err tells the two
// apart.
func (r *Reader) Read() (string, error) {
	if r.state.kind != stateBuffered {
		return "", io.EOF
	}

	var acc strings.Builder
	acc.WriteString(r.state.line[utf8.RuneLen(r.record):])

	for {
		line, err := r.seq.Next()
		if err == io.EOF {
			r.state = exhaustedState()
			return acc.String(), nil
		}
		if err != nil {
			// the record being assembled is dropped
			r.abort(err)
			return "", io.EOF
		}

		switch r.classify(line) {
		case blankLine, commentLine:
			continue
		case recordLine:
			r.state = bufferedState(line)
			return acc.String(), nil
		default:
			acc.WriteByte(' ')
			acc.WriteString(line)
		}
	}
}

// Ends the session after a read failure. The failure is logged and kept
// for Err.
func (r *Reader) abort(err error) {
	r.logger.Error().Err(err).Msg("failed to read database")
	r.err = err
	r.state = exhaustedState()

	if cerr := r.seq.Close(); cerr != nil {
		r.logger.Warn().Err(cerr).Msg("failed to release source")
	}
}

// Reads every remaining record. The error is the failure that ended the
// read early, if any; the records read before it are still returned.
func (r *Reader) ReadAll() ([]string, error) {
	var records []string
	for record := range r.Records() {
		records = append(records, record)
	}
	return records, r.err
}

// Iterates over the remaining records
func (r *Reader) Records() iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			record, err := r.Read()
			if err != nil {
				return
			}
			if !yield(record) {
				return
			}
		}
	}
}

// The read failure that ended the session, or nil. It matches
// ErrReadAborted.
func (r *Reader) Err() error {
	return r.err
}

// True once there are no more records to read
func (r *Reader) Exhausted() bool {
	return r.state.kind == stateExhausted
}

// Sources skipped because they could not be resolved
func (r *Reader) Skipped() []SourceError {
	return r.seq.Skipped()
}

// Releases the open source. Safe to call at any time, more than once.
func (r *Reader) Close() error {
	if r == nil || r.seq == nil {
		return nil
	}
	return r.seq.Close()
}
