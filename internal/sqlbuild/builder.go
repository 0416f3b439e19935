// Package sqlbuild assembles SQL statements from phrases and quoted
// identifiers. Builders are owned values scoped to a single statement;
// they are never shared between goroutines.
package sqlbuild

import "strings"

// Builder accumulates a single SQL statement. The zero value is ready
// to use. Phrases are separated by exactly one space; punctuation
// helpers tighten against the preceding token.
type Builder struct {
	sb     strings.Builder
	indent int
	atLine bool // true right after a newline, before any token
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{atLine: true}
}

func (b *Builder) pad() {
	if b.atLine {
		b.sb.WriteString(strings.Repeat("    ", b.indent))
		b.atLine = false
		return
	}
	if b.sb.Len() > 0 {
		b.sb.WriteByte(' ')
	}
}

// Phrase appends a raw SQL phrase, space-separated from what precedes it.
// Empty phrases are ignored.
func (b *Builder) Phrase(s string) *Builder {
	if s == "" {
		return b
	}
	b.pad()
	b.sb.WriteString(s)
	return b
}

// Ident appends a double-quoted identifier. Embedded double quotes are
// doubled per SQL quoting rules.
func (b *Builder) Ident(name string) *Builder {
	b.pad()
	b.sb.WriteString(QuoteIdent(name))
	return b
}

// Table appends a table reference, emitting "schema"."name" when a
// schema is present and "name" otherwise.
func (b *Builder) Table(schema, name string) *Builder {
	b.pad()
	b.sb.WriteString(QualifiedName(schema, name))
	return b
}

// Newline ends the current line.
func (b *Builder) Newline() *Builder {
	b.sb.WriteByte('\n')
	b.atLine = true
	return b
}

// Indent increases the indentation applied at the start of following lines.
func (b *Builder) Indent() *Builder {
	b.indent++
	return b
}

// Outdent decreases the indentation level.
func (b *Builder) Outdent() *Builder {
	if b.indent > 0 {
		b.indent--
	}
	return b
}

// Terminate appends the closing semicolon, tightened against the last
// token, and returns the finished statement.
func (b *Builder) Terminate() string {
	return strings.TrimRight(b.sb.String(), " \n\t") + ";"
}

// String returns the statement assembled so far without terminating it.
func (b *Builder) String() string {
	return b.sb.String()
}
