package ast

import "github.com/alecthomas/participle/v2/lexer"

// Manifest of a database: properties and source entries, in any order
type Manifest struct {
	Statements []*Statement `parser:"@@*"`
}

type Statement struct {
	Entry    *Entry    `parser:"  @@"`
	Property *Property `parser:"| @@"`
}

// A source of the database. src entries are kept as written, glob
// entries are expanded into the files they match.
type Entry struct {
	Pos lexer.Position

	Kind     string `parser:"@('src' | 'glob')"`
	Location string `parser:"@(String | RawString)"`
}

type Property struct {
	Pos lexer.Position

	Key   string `parser:"@Ident '='"`
	Value Value  `parser:"@@"`
}

type Value interface{ value() }

type String struct {
	String string `parser:"@(String | Char | RawString)"`
}

func (String) value() {}

// Parsed so that a number gets a clear error instead of a syntax error
type Number struct {
	Number float64 `parser:"@Float | @Int"`
}

func (Number) value() {}
