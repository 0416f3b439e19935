// Package ir holds the normalized schema model shared by the DDL
// parser, the catalog inspector, and the differ. A Catalog is a pure
// value: it references no connections or files, is built fresh per run,
// and is treated as immutable once handed to the differ.
package ir

import "sort"

// Catalog is a complete schema model, either the desired state (from
// parsed DDL) or the current state (from the system catalogs).
type Catalog struct {
	Tables     []*Table
	Enums      []*EnumType
	Views      []*View
	Functions  []*Function
	Sequences  []*Sequence
	Extensions []*Extension
	Schemas    []*SchemaDef
	Comments   []*Comment
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// DefaultSchema is assumed for every unqualified object name.
const DefaultSchema = "public"

// Key returns the (schema, name) identity used for keyed comparison.
// The schema defaults to "public" when unset so that qualified and
// unqualified spellings of the same object collide.
func Key(schema, name string) string {
	if schema == "" {
		schema = DefaultSchema
	}
	return schema + "." + name
}

// Table models a base table with its columns, constraints and indexes.
type Table struct {
	Schema      string
	Name        string
	Columns     []*Column
	PrimaryKey  *PrimaryKey
	ForeignKeys []*ForeignKey
	Checks      []*CheckConstraint
	Uniques     []*UniqueConstraint
	Indexes     []*Index
	Triggers    []*Trigger
}

// Key returns the table's catalog identity.
func (t *Table) Key() string { return Key(t.Schema, t.Name) }

// Column looks up a column by name, or nil.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Column models a table column. Default and Generated are mutually
// exclusive.
type Column struct {
	Name      string
	DataType  string
	NotNull   bool
	Default   *string
	Generated *GeneratedColumn
}

// GeneratedColumn is the GENERATED ... AS (expr) STORED spec of a column.
type GeneratedColumn struct {
	Always     bool
	Expression string
	Stored     bool
}

// PrimaryKey models a table's primary key constraint.
type PrimaryKey struct {
	Name    string // empty means auto-generated
	Columns []string
}

// RefAction is a foreign key ON DELETE / ON UPDATE action.
type RefAction string

const (
	RefActionNoAction   RefAction = "NO ACTION"
	RefActionRestrict   RefAction = "RESTRICT"
	RefActionCascade    RefAction = "CASCADE"
	RefActionSetNull    RefAction = "SET NULL"
	RefActionSetDefault RefAction = "SET DEFAULT"
)

// Normalize maps an absent action to NO ACTION, which PostgreSQL treats
// as the same thing.
func (a RefAction) Normalize() RefAction {
	if a == "" {
		return RefActionNoAction
	}
	return a
}

// ForeignKey models a FOREIGN KEY constraint.
type ForeignKey struct {
	Name              string // empty means auto-generated
	Columns           []string
	RefSchema         string
	RefTable          string
	RefColumns        []string
	OnDelete          RefAction
	OnUpdate          RefAction
	Deferrable        bool
	InitiallyDeferred bool
}

// RefKey returns the identity of the referenced table.
func (fk *ForeignKey) RefKey() string { return Key(fk.RefSchema, fk.RefTable) }

// CheckConstraint models a CHECK constraint.
type CheckConstraint struct {
	Name       string // empty means auto-generated
	Expression string
}

// UniqueConstraint models a UNIQUE constraint (constraint-backed, not a
// standalone unique index).
type UniqueConstraint struct {
	Name              string // empty means auto-generated
	Columns           []string
	Deferrable        bool
	InitiallyDeferred bool
}

// SortedColumns returns the column set in sorted order; a unique
// constraint is identified by its column set, not the column order.
func (u *UniqueConstraint) SortedColumns() []string {
	cols := append([]string(nil), u.Columns...)
	sort.Strings(cols)
	return cols
}

// Index models a standalone or constraint-backed index.
type Index struct {
	Schema        string
	Table         string
	Name          string
	Columns       []string
	Opclasses     map[string]string // column -> non-default operator class
	SortOrders    map[string]string // column -> DESC when not the default ASC
	Method        string            // btree, hash, gist, spgist, gin, brin
	Unique        bool
	Where         string // partial index predicate
	Expression    string // expression index body, empty for plain column indexes
	StorageParams map[string]string
	Tablespace    string
	Concurrent    bool // user wrote CONCURRENTLY in the desired DDL

	// BackingConstraint names the UNIQUE/PRIMARY KEY/EXCLUDE constraint
	// that owns this index. Such indexes are managed through ALTER TABLE
	// and never through CREATE/DROP INDEX.
	BackingConstraint string
}

// IsConstraintBacked reports whether the index is owned by a constraint.
func (ix *Index) IsConstraintBacked() bool { return ix.BackingConstraint != "" }

// TriggerTiming is when a trigger fires relative to its event.
type TriggerTiming string

const (
	TriggerBefore    TriggerTiming = "BEFORE"
	TriggerAfter     TriggerTiming = "AFTER"
	TriggerInsteadOf TriggerTiming = "INSTEAD OF"
)

// Trigger models CREATE TRIGGER. The function reference keeps its
// argument list as written, e.g. `audit.log_change('orders')`.
type Trigger struct {
	Schema   string
	Table    string
	Name     string
	Timing   TriggerTiming
	Events   []string // INSERT, UPDATE [OF cols], DELETE, TRUNCATE
	ForEach  string   // ROW or STATEMENT
	When     string   // WHEN predicate, empty when absent
	Function string   // function call text including arguments
}

// EnumType models CREATE TYPE ... AS ENUM.
type EnumType struct {
	Schema string
	Name   string
	Values []string
}

// Key returns the enum's catalog identity.
func (e *EnumType) Key() string { return Key(e.Schema, e.Name) }

// View models a (possibly materialized) view.
type View struct {
	Schema          string
	Name            string
	Definition      string // SELECT text
	Materialized    bool
	CheckOption     string // "", "LOCAL" or "CASCADED"
	SecurityBarrier bool
}

// Key returns the view's catalog identity.
func (v *View) Key() string { return Key(v.Schema, v.Name) }

// FunctionParam is a single function or procedure parameter.
type FunctionParam struct {
	Name    string
	Mode    string // IN, OUT, INOUT, VARIADIC
	Type    string
	Default string
}

// Function models a function, procedure, or trigger function.
type Function struct {
	Schema          string
	Name            string
	Params          []*FunctionParam
	Returns         string
	Language        string
	Body            string
	Volatility      string // IMMUTABLE, STABLE, VOLATILE
	Parallel        string // SAFE, RESTRICTED, UNSAFE
	SecurityDefiner bool
	Strict          bool
	Cost            float64
	Rows            float64
	IsProcedure     bool
}

// Key returns the function identity including its argument types, so
// overloads stay distinct.
func (f *Function) Key() string { return Key(f.Schema, f.Name) + "(" + f.ArgTypes() + ")" }

// ArgTypes returns the comma-separated input argument type list used in
// DROP FUNCTION.
func (f *Function) ArgTypes() string {
	out := ""
	for _, p := range f.Params {
		if p.Mode == "OUT" {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += p.Type
	}
	return out
}

// Sequence models CREATE SEQUENCE. Sequences owned by a table column
// are managed by that column and skipped by the differ.
type Sequence struct {
	Schema        string
	Name          string
	DataType      string
	Increment     int64
	MinValue      *int64
	MaxValue      *int64
	Start         int64
	Cache         int64
	Cycle         bool
	OwnedByTable  string
	OwnedByColumn string
}

// Key returns the sequence's catalog identity.
func (s *Sequence) Key() string { return Key(s.Schema, s.Name) }

// OwnedByColumnSerial reports whether the sequence is owned by a table
// column and therefore outside declarative management.
func (s *Sequence) OwnedByColumnSerial() bool {
	return s.OwnedByTable != "" && s.OwnedByColumn != ""
}

// Extension models CREATE EXTENSION.
type Extension struct {
	Name    string
	Schema  string
	Version string
}

// SchemaDef models CREATE SCHEMA.
type SchemaDef struct {
	Name string
}

// CommentTarget enumerates the object kinds COMMENT ON can address here.
type CommentTarget string

const (
	CommentOnTable  CommentTarget = "TABLE"
	CommentOnColumn CommentTarget = "COLUMN"
	CommentOnIndex  CommentTarget = "INDEX"
	CommentOnView   CommentTarget = "VIEW"
	CommentOnType   CommentTarget = "TYPE"
)

// Comment models a COMMENT ON statement.
type Comment struct {
	Target CommentTarget
	Schema string
	Object string
	Column string // set for COMMENT ON COLUMN
	Text   string
}

// Key returns the comment's identity: what it is attached to.
func (c *Comment) Key() string {
	k := string(c.Target) + ":" + Key(c.Schema, c.Object)
	if c.Column != "" {
		k += "." + c.Column
	}
	return k
}

// TableMap indexes the catalog's tables by (schema, name).
func (c *Catalog) TableMap() map[string]*Table {
	m := make(map[string]*Table, len(c.Tables))
	for _, t := range c.Tables {
		m[t.Key()] = t
	}
	return m
}

// Table looks up a table by schema and bare name.
func (c *Catalog) Table(schema, name string) *Table {
	for _, t := range c.Tables {
		if t.Key() == Key(schema, name) {
			return t
		}
	}
	return nil
}
