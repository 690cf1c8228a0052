package linedb

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Resolver that records every open and close, in order
type journalResolver struct {
	contents map[string]string
	journal  []string
}

type journalStream struct {
	io.Reader
	id      string
	journal *[]string
}

func (s *journalStream) Close() error {
	*s.journal = append(*s.journal, "close "+s.id)
	return nil
}

func (r *journalResolver) Open(id string) (io.ReadCloser, error) {
	content, ok := r.contents[id]
	if !ok {
		r.journal = append(r.journal, "fail "+id)
		return nil, fmt.Errorf("no such source %s", id)
	}
	r.journal = append(r.journal, "open "+id)
	return &journalStream{Reader: strings.NewReader(content), id: id, journal: &r.journal}, nil
}

func drain(t *testing.T, s *Sequencer) []string {
	t.Helper()

	var lines []string
	for line, err := range s.Lines() {
		require.NoError(t, err)
		lines = append(lines, line)
	}
	return lines
}

func TestSequencer_Order(t *testing.T) {
	resolver := &journalResolver{contents: map[string]string{
		"a": "1\n2",
		"b": "",
		"c": "3\n",
	}}

	s, err := OpenSequencer([]string{"a", "b", "c"}, testOptions(resolver))
	require.NoError(t, err)
	assert.Equal(t, []string{"open a"}, resolver.journal)

	assert.Equal(t, []string{"1", "2", "3"}, drain(t, s))
	assert.Equal(t, []string{
		"open a", "close a",
		"open b", "close b",
		"open c", "close c",
	}, resolver.journal)

	// already at the end
	_, err = s.Next()
	assert.Equal(t, io.EOF, err)
	require.NoError(t, s.Close())
	assert.Len(t, resolver.journal, 6)
}

func TestSequencer_SkipsUnresolvable(t *testing.T) {
	resolver := &journalResolver{contents: map[string]string{
		"a": "1",
		"c": "2",
	}}

	s, err := OpenSequencer([]string{"a", "b", "c", "d"}, testOptions(resolver))
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, drain(t, s))
	assert.Equal(t, []string{
		"open a", "close a",
		"fail b",
		"open c", "close c",
		"fail d",
	}, resolver.journal)

	skipped := s.Skipped()
	require.Len(t, skipped, 2)
	assert.Equal(t, 1, skipped[0].Index)
	assert.Equal(t, "b", skipped[0].ID)
	assert.Equal(t, 3, skipped[1].Index)
	assert.Equal(t, "d", skipped[1].ID)

	skipped[0].ID = "changed"
	assert.Equal(t, "b", s.Skipped()[0].ID)
}

func TestSequencer_FirstSourceFatal(t *testing.T) {
	resolver := &journalResolver{contents: map[string]string{"b": "1"}}

	s, err := OpenSequencer([]string{"a", "b"}, testOptions(resolver))
	assert.Nil(t, s)

	var serr *SourceError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "a", serr.ID)
	assert.Equal(t, []string{"fail a"}, resolver.journal)
}

func TestSequencer_Empty(t *testing.T) {
	resolver := &journalResolver{}

	s, err := OpenSequencer(nil, testOptions(resolver))
	require.NoError(t, err)

	_, err = s.Next()
	assert.Equal(t, io.EOF, err)
	assert.NoError(t, s.Close())
	assert.Empty(t, resolver.journal)
}

func TestSequencer_CloseMidway(t *testing.T) {
	resolver := &journalResolver{contents: map[string]string{
		"a": "1\n2",
		"b": "3",
	}}

	s, err := OpenSequencer([]string{"a", "b"}, testOptions(resolver))
	require.NoError(t, err)

	line, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "1", line)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	// nothing is opened after a close
	_, err = s.Next()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, []string{"open a", "close a"}, resolver.journal)
}

func TestSequencer_ReadError(t *testing.T) {
	resolver := ResolverFunc(func(id string) (io.ReadCloser, error) {
		if id == "bad" {
			return &trackedStream{Reader: io.MultiReader(strings.NewReader("x\n"), errReader{})}, nil
		}
		return &trackedStream{Reader: strings.NewReader("y")}, nil
	})

	s, err := OpenSequencer([]string{"bad", "good"}, testOptions(resolver))
	require.NoError(t, err)
	defer s.Close()

	line, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "x", line)

	_, err = s.Next()
	var rerr *ReadError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, 0, rerr.Index)
	assert.Equal(t, "bad", rerr.ID)
	assert.True(t, errors.Is(err, ErrReadAborted))
	assert.True(t, errors.Is(err, errBroken))
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) {
	return 0, errBroken
}
