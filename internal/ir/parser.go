package ir

import (
	"fmt"
	"strconv"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/pgdelta/pgdelta/internal/logger"
)

// Parser turns a multi-statement DDL text into a desired-state Catalog.
// It is tolerant: statements it does not understand are skipped with a
// warning, and a parse failure in one statement does not abort the
// batch. User-written identifiers and expression text are preserved
// verbatim; normalization happens at comparison time.
type Parser struct {
	catalog       *Catalog
	defaultSchema string
}

// NewParser creates a parser that attributes unqualified names to
// defaultSchema ("public" when empty).
func NewParser(defaultSchema string) *Parser {
	if defaultSchema == "" {
		defaultSchema = DefaultSchema
	}
	return &Parser{catalog: NewCatalog(), defaultSchema: defaultSchema}
}

// ParseDDL parses the statements in ddl and returns the desired catalog.
func (p *Parser) ParseDDL(ddl string) (*Catalog, error) {
	statements, err := pg_query.SplitWithParser(ddl, true)
	if err != nil {
		// the parser-based splitter rejects any invalid statement; the
		// scanner-based one still splits so the valid ones survive
		statements, err = pg_query.SplitWithScanner(ddl, true)
		if err != nil {
			return nil, fmt.Errorf("failed to split DDL statements: %w", err)
		}
	}

	log := logger.Get()
	for _, stmt := range statements {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		result, err := pg_query.Parse(stmt)
		if err != nil {
			log.Warn("skipping unparseable statement", "error", err, "statement", truncate(stmt, 120))
			continue
		}
		for _, raw := range result.Stmts {
			if err := p.parseStatement(raw.Stmt); err != nil {
				log.Warn("skipping statement", "error", err, "statement", truncate(stmt, 120))
			}
		}
	}
	return p.catalog, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (p *Parser) parseStatement(stmt *pg_query.Node) error {
	switch node := stmt.Node.(type) {
	case *pg_query.Node_CreateStmt:
		return p.parseCreateTable(node.CreateStmt)
	case *pg_query.Node_IndexStmt:
		return p.parseCreateIndex(node.IndexStmt)
	case *pg_query.Node_CreateEnumStmt:
		return p.parseCreateEnum(node.CreateEnumStmt)
	case *pg_query.Node_ViewStmt:
		return p.parseCreateView(node.ViewStmt)
	case *pg_query.Node_CreateTableAsStmt:
		return p.parseCreateTableAs(node.CreateTableAsStmt)
	case *pg_query.Node_CreateFunctionStmt:
		return p.parseCreateFunction(node.CreateFunctionStmt)
	case *pg_query.Node_CreateSeqStmt:
		return p.parseCreateSequence(node.CreateSeqStmt)
	case *pg_query.Node_CreateExtensionStmt:
		return p.parseCreateExtension(node.CreateExtensionStmt)
	case *pg_query.Node_CreateSchemaStmt:
		p.catalog.Schemas = append(p.catalog.Schemas, &SchemaDef{Name: node.CreateSchemaStmt.Schemaname})
		return nil
	case *pg_query.Node_CommentStmt:
		return p.parseComment(node.CommentStmt)
	case *pg_query.Node_CreateTrigStmt:
		return p.parseCreateTrigger(node.CreateTrigStmt)
	default:
		return fmt.Errorf("unsupported statement kind %T", stmt.Node)
	}
}

// relationName resolves a RangeVar into (schema, name) with the default
// schema applied.
func (p *Parser) relationName(rv *pg_query.RangeVar) (string, string) {
	schema := rv.Schemaname
	if schema == "" {
		schema = p.defaultSchema
	}
	return schema, rv.Relname
}

// ---- tables ----

func (p *Parser) parseCreateTable(stmt *pg_query.CreateStmt) error {
	schema, name := p.relationName(stmt.Relation)
	table := &Table{Schema: schema, Name: name}

	for _, elt := range stmt.TableElts {
		switch e := elt.Node.(type) {
		case *pg_query.Node_ColumnDef:
			p.parseColumnDef(table, e.ColumnDef)
		case *pg_query.Node_Constraint:
			p.parseTableConstraint(table, e.Constraint)
		default:
			logger.Get().Warn("skipping unsupported table element",
				"table", name, "element", fmt.Sprintf("%T", elt.Node))
		}
	}

	p.catalog.Tables = append(p.catalog.Tables, table)
	return nil
}

func (p *Parser) parseColumnDef(table *Table, colDef *pg_query.ColumnDef) {
	col := &Column{
		Name:     colDef.Colname,
		DataType: p.typeText(colDef.TypeName),
	}

	for _, c := range colDef.Constraints {
		cons := c.GetConstraint()
		if cons == nil {
			continue
		}
		switch cons.Contype {
		case pg_query.ConstrType_CONSTR_NOTNULL:
			col.NotNull = true
		case pg_query.ConstrType_CONSTR_NULL:
			col.NotNull = false
		case pg_query.ConstrType_CONSTR_DEFAULT:
			if cons.RawExpr != nil {
				def := p.deparseExpr(cons.RawExpr)
				col.Default = &def
			}
		case pg_query.ConstrType_CONSTR_GENERATED:
			if cons.RawExpr != nil {
				col.Generated = &GeneratedColumn{
					Always:     cons.GeneratedWhen == "a",
					Expression: p.deparseExpr(cons.RawExpr),
					Stored:     true,
				}
			}
		case pg_query.ConstrType_CONSTR_PRIMARY:
			col.NotNull = true
			table.PrimaryKey = &PrimaryKey{Name: cons.Conname, Columns: []string{col.Name}}
		case pg_query.ConstrType_CONSTR_UNIQUE:
			table.Uniques = append(table.Uniques, &UniqueConstraint{
				Name:              cons.Conname,
				Columns:           []string{col.Name},
				Deferrable:        cons.Deferrable,
				InitiallyDeferred: cons.Initdeferred,
			})
		case pg_query.ConstrType_CONSTR_CHECK:
			if cons.RawExpr != nil {
				table.Checks = append(table.Checks, &CheckConstraint{
					Name:       cons.Conname,
					Expression: p.deparseExpr(cons.RawExpr),
				})
			}
		case pg_query.ConstrType_CONSTR_FOREIGN:
			if fk := p.parseForeignKey(cons, []string{col.Name}); fk != nil {
				table.ForeignKeys = append(table.ForeignKeys, fk)
			}
		}
	}

	// serial pseudo-types are stored as their base integer with a
	// sequence-backed default, which is what the catalogs will report
	if IsSerialType(col.DataType) {
		def := fmt.Sprintf("nextval('%s_%s_seq'::regclass)", table.Name, col.Name)
		col.DataType = NormalizeType(col.DataType)
		col.Default = &def
		col.NotNull = true
	}

	table.Columns = append(table.Columns, col)
}

func (p *Parser) parseTableConstraint(table *Table, cons *pg_query.Constraint) {
	switch cons.Contype {
	case pg_query.ConstrType_CONSTR_PRIMARY:
		table.PrimaryKey = &PrimaryKey{Name: cons.Conname, Columns: stringList(cons.Keys)}
	case pg_query.ConstrType_CONSTR_UNIQUE:
		table.Uniques = append(table.Uniques, &UniqueConstraint{
			Name:              cons.Conname,
			Columns:           stringList(cons.Keys),
			Deferrable:        cons.Deferrable,
			InitiallyDeferred: cons.Initdeferred,
		})
	case pg_query.ConstrType_CONSTR_CHECK:
		if cons.RawExpr != nil {
			table.Checks = append(table.Checks, &CheckConstraint{
				Name:       cons.Conname,
				Expression: p.deparseExpr(cons.RawExpr),
			})
		}
	case pg_query.ConstrType_CONSTR_FOREIGN:
		if fk := p.parseForeignKey(cons, stringList(cons.FkAttrs)); fk != nil {
			table.ForeignKeys = append(table.ForeignKeys, fk)
		}
	default:
		logger.Get().Warn("skipping unsupported table constraint",
			"table", table.Name, "type", cons.Contype.String())
	}
}

func (p *Parser) parseForeignKey(cons *pg_query.Constraint, cols []string) *ForeignKey {
	if cons.Pktable == nil {
		return nil
	}
	refSchema, refTable := p.relationName(cons.Pktable)
	return &ForeignKey{
		Name:              cons.Conname,
		Columns:           cols,
		RefSchema:         refSchema,
		RefTable:          refTable,
		RefColumns:        stringList(cons.PkAttrs),
		OnDelete:          refAction(cons.FkDelAction),
		OnUpdate:          refAction(cons.FkUpdAction),
		Deferrable:        cons.Deferrable,
		InitiallyDeferred: cons.Initdeferred,
	}
}

// refAction maps the parse tree's single-letter action codes.
func refAction(code string) RefAction {
	switch code {
	case "r":
		return RefActionRestrict
	case "c":
		return RefActionCascade
	case "n":
		return RefActionSetNull
	case "d":
		return RefActionSetDefault
	default:
		return RefActionNoAction
	}
}

// ---- indexes ----

func (p *Parser) parseCreateIndex(stmt *pg_query.IndexStmt) error {
	schema, table := p.relationName(stmt.Relation)
	ix := &Index{
		Schema:     schema,
		Table:      table,
		Name:       stmt.Idxname,
		Method:     stmt.AccessMethod,
		Unique:     stmt.Unique,
		Concurrent: stmt.Concurrent,
		Tablespace: stmt.TableSpace,
	}
	if ix.Method == "" {
		ix.Method = "btree"
	}
	if stmt.WhereClause != nil {
		ix.Where = p.deparseExpr(stmt.WhereClause)
	}

	var exprs []string
	for _, param := range stmt.IndexParams {
		elem := param.GetIndexElem()
		if elem == nil {
			continue
		}
		if elem.Name == "" && elem.Expr != nil {
			exprs = append(exprs, p.deparseExpr(elem.Expr))
			continue
		}
		ix.Columns = append(ix.Columns, elem.Name)
		if len(elem.Opclass) > 0 {
			if ix.Opclasses == nil {
				ix.Opclasses = make(map[string]string)
			}
			ix.Opclasses[elem.Name] = strings.Join(stringList(elem.Opclass), ".")
		}
		if elem.Ordering == pg_query.SortByDir_SORTBY_DESC {
			if ix.SortOrders == nil {
				ix.SortOrders = make(map[string]string)
			}
			ix.SortOrders[elem.Name] = "DESC"
		}
	}
	if len(exprs) > 0 {
		ix.Expression = strings.Join(exprs, ", ")
	}

	for _, opt := range stmt.Options {
		if de := opt.GetDefElem(); de != nil {
			if ix.StorageParams == nil {
				ix.StorageParams = make(map[string]string)
			}
			ix.StorageParams[de.Defname] = defElemString(de)
		}
	}

	t := p.catalog.Table(schema, table)
	if t == nil {
		return fmt.Errorf("index %q references unknown table %s.%s", ix.Name, schema, table)
	}
	t.Indexes = append(t.Indexes, ix)
	return nil
}

// ---- triggers ----

// Trigger type bits from pg_trigger.h; the grammar reuses them.
const (
	trigTypeBefore   = 1 << 1
	trigTypeInsert   = 1 << 2
	trigTypeDelete   = 1 << 3
	trigTypeUpdate   = 1 << 4
	trigTypeTruncate = 1 << 5
	trigTypeInstead  = 1 << 6
)

func (p *Parser) parseCreateTrigger(stmt *pg_query.CreateTrigStmt) error {
	schema, table := p.relationName(stmt.Relation)
	t := p.catalog.Table(schema, table)
	if t == nil {
		return fmt.Errorf("trigger %q references unknown table %s.%s", stmt.Trigname, schema, table)
	}

	trig := &Trigger{
		Schema:  schema,
		Table:   table,
		Name:    stmt.Trigname,
		ForEach: "STATEMENT",
	}
	if stmt.Row {
		trig.ForEach = "ROW"
	}
	switch {
	case stmt.Timing&trigTypeBefore != 0:
		trig.Timing = TriggerBefore
	case stmt.Timing&trigTypeInstead != 0:
		trig.Timing = TriggerInsteadOf
	default:
		trig.Timing = TriggerAfter
	}

	if stmt.Events&trigTypeInsert != 0 {
		trig.Events = append(trig.Events, "INSERT")
	}
	if stmt.Events&trigTypeUpdate != 0 {
		ev := "UPDATE"
		if cols := stringList(stmt.Columns); len(cols) > 0 {
			ev += " OF " + strings.Join(cols, ", ")
		}
		trig.Events = append(trig.Events, ev)
	}
	if stmt.Events&trigTypeDelete != 0 {
		trig.Events = append(trig.Events, "DELETE")
	}
	if stmt.Events&trigTypeTruncate != 0 {
		trig.Events = append(trig.Events, "TRUNCATE")
	}

	if stmt.WhenClause != nil {
		trig.When = p.deparseExpr(stmt.WhenClause)
	}
	trig.Function = p.triggerFunctionCall(stmt)

	t.Triggers = append(t.Triggers, trig)
	return nil
}

// triggerFunctionCall renders the EXECUTE FUNCTION target with its
// literal arguments. A default-schema qualifier is dropped so parsed
// DDL and pg_get_triggerdef output spell the call the same way.
func (p *Parser) triggerFunctionCall(stmt *pg_query.CreateTrigStmt) string {
	parts := stringList(stmt.Funcname)
	if len(parts) > 1 && parts[0] == p.defaultSchema {
		parts = parts[1:]
	}
	name := strings.Join(parts, ".")

	args := make([]string, 0, len(stmt.Args))
	for _, a := range stmt.Args {
		if s := a.GetString_(); s != nil {
			args = append(args, "'"+strings.ReplaceAll(s.Sval, "'", "''")+"'")
		}
	}
	return name + "(" + strings.Join(args, ", ") + ")"
}

// ---- enums ----

func (p *Parser) parseCreateEnum(stmt *pg_query.CreateEnumStmt) error {
	parts := stringList(stmt.TypeName)
	if len(parts) == 0 {
		return fmt.Errorf("enum type has no name")
	}
	enum := &EnumType{Schema: p.defaultSchema, Name: parts[len(parts)-1]}
	if len(parts) > 1 {
		enum.Schema = parts[0]
	}
	for _, v := range stmt.Vals {
		if s := v.GetString_(); s != nil {
			enum.Values = append(enum.Values, s.Sval)
		}
	}
	p.catalog.Enums = append(p.catalog.Enums, enum)
	return nil
}

// ---- views ----

func (p *Parser) parseCreateView(stmt *pg_query.ViewStmt) error {
	schema, name := p.relationName(stmt.View)
	view := &View{
		Schema:     schema,
		Name:       name,
		Definition: p.deparseExpr(stmt.Query),
	}
	switch stmt.WithCheckOption {
	case pg_query.ViewCheckOption_LOCAL_CHECK_OPTION:
		view.CheckOption = "LOCAL"
	case pg_query.ViewCheckOption_CASCADED_CHECK_OPTION:
		view.CheckOption = "CASCADED"
	}
	for _, opt := range stmt.Options {
		if de := opt.GetDefElem(); de != nil && de.Defname == "security_barrier" {
			view.SecurityBarrier = defElemBool(de)
		}
	}
	p.catalog.Views = append(p.catalog.Views, view)
	return nil
}

func (p *Parser) parseCreateTableAs(stmt *pg_query.CreateTableAsStmt) error {
	if stmt.Objtype != pg_query.ObjectType_OBJECT_MATVIEW {
		return fmt.Errorf("CREATE TABLE AS is not supported; declare the table instead")
	}
	schema, name := p.relationName(stmt.Into.Rel)
	p.catalog.Views = append(p.catalog.Views, &View{
		Schema:       schema,
		Name:         name,
		Definition:   p.deparseExpr(stmt.Query),
		Materialized: true,
	})
	return nil
}

// ---- functions ----

func (p *Parser) parseCreateFunction(stmt *pg_query.CreateFunctionStmt) error {
	parts := stringList(stmt.Funcname)
	if len(parts) == 0 {
		return fmt.Errorf("function has no name")
	}
	fn := &Function{
		Schema:      p.defaultSchema,
		Name:        parts[len(parts)-1],
		IsProcedure: stmt.IsProcedure,
	}
	if len(parts) > 1 {
		fn.Schema = parts[0]
	}
	if stmt.ReturnType != nil {
		fn.Returns = p.typeText(stmt.ReturnType)
	}

	for _, param := range stmt.Parameters {
		fp := param.GetFunctionParameter()
		if fp == nil {
			continue
		}
		mode := "IN"
		switch fp.Mode {
		case pg_query.FunctionParameterMode_FUNC_PARAM_OUT:
			mode = "OUT"
		case pg_query.FunctionParameterMode_FUNC_PARAM_INOUT:
			mode = "INOUT"
		case pg_query.FunctionParameterMode_FUNC_PARAM_VARIADIC:
			mode = "VARIADIC"
		case pg_query.FunctionParameterMode_FUNC_PARAM_TABLE:
			// RETURNS TABLE columns are part of the return type
			continue
		}
		pp := &FunctionParam{Name: fp.Name, Mode: mode, Type: p.typeText(fp.ArgType)}
		if fp.Defexpr != nil {
			pp.Default = p.deparseExpr(fp.Defexpr)
		}
		fn.Params = append(fn.Params, pp)
	}

	for _, opt := range stmt.Options {
		de := opt.GetDefElem()
		if de == nil {
			continue
		}
		switch de.Defname {
		case "as":
			if list := de.Arg.GetList(); list != nil && len(list.Items) > 0 {
				if s := list.Items[len(list.Items)-1].GetString_(); s != nil {
					fn.Body = s.Sval
				}
			}
		case "language":
			fn.Language = defElemString(de)
		case "volatility":
			fn.Volatility = strings.ToUpper(defElemString(de))
		case "parallel":
			fn.Parallel = strings.ToUpper(defElemString(de))
		case "strict":
			fn.Strict = defElemBool(de)
		case "security":
			fn.SecurityDefiner = defElemBool(de)
		case "cost":
			fn.Cost, _ = strconv.ParseFloat(defElemString(de), 64)
		case "rows":
			fn.Rows, _ = strconv.ParseFloat(defElemString(de), 64)
		}
	}

	p.catalog.Functions = append(p.catalog.Functions, fn)
	return nil
}

// ---- sequences ----

func (p *Parser) parseCreateSequence(stmt *pg_query.CreateSeqStmt) error {
	schema, name := p.relationName(stmt.Sequence)
	seq := &Sequence{Schema: schema, Name: name, Increment: 1, Start: 1, Cache: 1}

	for _, opt := range stmt.Options {
		de := opt.GetDefElem()
		if de == nil {
			continue
		}
		switch de.Defname {
		case "as":
			if tn := de.Arg.GetTypeName(); tn != nil {
				seq.DataType = p.typeText(tn)
			}
		case "increment":
			seq.Increment = defElemInt(de, 1)
		case "minvalue":
			if de.Arg != nil {
				v := defElemInt(de, 0)
				seq.MinValue = &v
			}
		case "maxvalue":
			if de.Arg != nil {
				v := defElemInt(de, 0)
				seq.MaxValue = &v
			}
		case "start":
			seq.Start = defElemInt(de, 1)
		case "cache":
			seq.Cache = defElemInt(de, 1)
		case "cycle":
			seq.Cycle = defElemBool(de)
		case "owned_by":
			if list := de.Arg.GetList(); list != nil {
				parts := stringList(list.Items)
				if len(parts) >= 2 {
					seq.OwnedByTable = parts[len(parts)-2]
					seq.OwnedByColumn = parts[len(parts)-1]
				}
			}
		}
	}

	p.catalog.Sequences = append(p.catalog.Sequences, seq)
	return nil
}

// ---- extensions / comments ----

func (p *Parser) parseCreateExtension(stmt *pg_query.CreateExtensionStmt) error {
	ext := &Extension{Name: stmt.Extname}
	for _, opt := range stmt.Options {
		if de := opt.GetDefElem(); de != nil {
			switch de.Defname {
			case "schema":
				ext.Schema = defElemString(de)
			case "new_version":
				ext.Version = defElemString(de)
			}
		}
	}
	p.catalog.Extensions = append(p.catalog.Extensions, ext)
	return nil
}

func (p *Parser) parseComment(stmt *pg_query.CommentStmt) error {
	var target CommentTarget
	switch stmt.Objtype {
	case pg_query.ObjectType_OBJECT_TABLE:
		target = CommentOnTable
	case pg_query.ObjectType_OBJECT_COLUMN:
		target = CommentOnColumn
	case pg_query.ObjectType_OBJECT_INDEX:
		target = CommentOnIndex
	case pg_query.ObjectType_OBJECT_VIEW, pg_query.ObjectType_OBJECT_MATVIEW:
		target = CommentOnView
	case pg_query.ObjectType_OBJECT_TYPE:
		target = CommentOnType
	default:
		return fmt.Errorf("unsupported COMMENT ON target %s", stmt.Objtype)
	}

	var parts []string
	if list := stmt.Object.GetList(); list != nil {
		parts = stringList(list.Items)
	} else if s := stmt.Object.GetString_(); s != nil {
		parts = []string{s.Sval}
	} else if tn := stmt.Object.GetTypeName(); tn != nil {
		parts = stringList(tn.Names)
	}
	if len(parts) == 0 {
		return fmt.Errorf("COMMENT ON names no object")
	}

	c := &Comment{Target: target, Schema: p.defaultSchema, Text: stmt.Comment}
	switch target {
	case CommentOnColumn:
		// [schema,] table, column
		c.Column = parts[len(parts)-1]
		parts = parts[:len(parts)-1]
		fallthrough
	default:
		c.Object = parts[len(parts)-1]
		if len(parts) > 1 {
			c.Schema = parts[len(parts)-2]
		}
	}
	p.catalog.Comments = append(p.catalog.Comments, c)
	return nil
}

// ---- helpers ----

// typeText renders a TypeName as the user wrote it: qualified name,
// modifiers, array brackets.
func (p *Parser) typeText(tn *pg_query.TypeName) string {
	if tn == nil {
		return ""
	}
	var parts []string
	for _, n := range tn.Names {
		if s := n.GetString_(); s != nil && s.Sval != "pg_catalog" {
			parts = append(parts, s.Sval)
		}
	}
	name := strings.Join(parts, ".")
	name = canonicalTypeSpelling(name)

	if len(tn.Typmods) > 0 {
		var mods []string
		for _, m := range tn.Typmods {
			if c := m.GetAConst(); c != nil {
				if iv := c.GetIval(); iv != nil {
					mods = append(mods, strconv.Itoa(int(iv.Ival)))
				}
			}
		}
		if len(mods) > 0 {
			name += "(" + strings.Join(mods, ",") + ")"
		}
	}
	if len(tn.ArrayBounds) > 0 {
		name += "[]"
	}
	return name
}

// canonicalTypeSpelling undoes the grammar's internal spellings so the
// stored text matches what a user would write.
func canonicalTypeSpelling(name string) string {
	switch name {
	case "int4":
		return "integer"
	case "int2":
		return "smallint"
	case "int8":
		return "bigint"
	case "bpchar":
		return "character"
	case "float4":
		return "real"
	case "float8":
		return "double precision"
	case "bool":
		return "boolean"
	}
	return name
}

// deparseExpr renders an expression or query node back to SQL text.
// Statement nodes (view bodies) deparse directly; bare expressions are
// not statements, so they ride in a dummy SELECT target list and the
// SELECT prefix is stripped afterwards.
func (p *Parser) deparseExpr(expr *pg_query.Node) string {
	if expr == nil {
		return ""
	}
	if expr.GetSelectStmt() != nil {
		result := &pg_query.ParseResult{Stmts: []*pg_query.RawStmt{{Stmt: expr}}}
		if out, err := pg_query.Deparse(result); err == nil {
			return strings.TrimSpace(out)
		}
		return ""
	}

	sel := &pg_query.SelectStmt{
		TargetList: []*pg_query.Node{{
			Node: &pg_query.Node_ResTarget{ResTarget: &pg_query.ResTarget{Val: expr}},
		}},
	}
	result := &pg_query.ParseResult{Stmts: []*pg_query.RawStmt{{
		Stmt: &pg_query.Node{Node: &pg_query.Node_SelectStmt{SelectStmt: sel}},
	}}}
	out, err := pg_query.Deparse(result)
	if err != nil {
		return ""
	}
	if rest, ok := strings.CutPrefix(strings.TrimSpace(out), "SELECT "); ok {
		return strings.TrimSpace(rest)
	}
	return ""
}

// stringList extracts the string values of a node list.
func stringList(nodes []*pg_query.Node) []string {
	var out []string
	for _, n := range nodes {
		if s := n.GetString_(); s != nil {
			out = append(out, s.Sval)
		}
	}
	return out
}

func defElemString(de *pg_query.DefElem) string {
	if de.Arg == nil {
		return ""
	}
	switch v := de.Arg.Node.(type) {
	case *pg_query.Node_String_:
		return v.String_.Sval
	case *pg_query.Node_Integer:
		return strconv.Itoa(int(v.Integer.Ival))
	case *pg_query.Node_Float:
		return v.Float.Fval
	case *pg_query.Node_Boolean:
		return strconv.FormatBool(v.Boolean.Boolval)
	case *pg_query.Node_TypeName:
		return strings.Join(stringListFromTypeName(v.TypeName), ".")
	}
	return ""
}

func stringListFromTypeName(tn *pg_query.TypeName) []string {
	return stringList(tn.Names)
}

func defElemBool(de *pg_query.DefElem) bool {
	if de.Arg == nil {
		return true // bare flag means enabled
	}
	switch v := de.Arg.Node.(type) {
	case *pg_query.Node_Boolean:
		return v.Boolean.Boolval
	case *pg_query.Node_Integer:
		return v.Integer.Ival != 0
	case *pg_query.Node_String_:
		return v.String_.Sval == "true" || v.String_.Sval == "on"
	}
	return false
}

func defElemInt(de *pg_query.DefElem, fallback int64) int64 {
	if de.Arg == nil {
		return fallback
	}
	switch v := de.Arg.Node.(type) {
	case *pg_query.Node_Integer:
		return int64(v.Integer.Ival)
	case *pg_query.Node_Float:
		if i, err := strconv.ParseInt(v.Float.Fval, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}
