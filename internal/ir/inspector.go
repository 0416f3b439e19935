package ir

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	pg_query "github.com/pganalyze/pg_query_go/v6"
	"golang.org/x/sync/errgroup"

	"github.com/pgdelta/pgdelta/internal/logger"
)

// Inspector builds a Catalog from the system catalogs of a live
// database.
type Inspector struct {
	db *sql.DB
}

// NewInspector creates an inspector over an open connection pool.
func NewInspector(db *sql.DB) *Inspector {
	return &Inspector{db: db}
}

// Build introspects targetSchema ("public" when empty) and returns the
// current-state catalog. Lookups that are independent of each other run
// concurrently.
func (i *Inspector) Build(ctx context.Context, targetSchema string) (*Catalog, error) {
	if targetSchema == "" {
		targetSchema = DefaultSchema
	}
	if err := i.checkSchemaExists(ctx, targetSchema); err != nil {
		return nil, err
	}

	catalog := NewCatalog()
	catalog.Schemas = append(catalog.Schemas, &SchemaDef{Name: targetSchema})

	// tables first: everything in the first group attaches to them
	if err := i.buildTables(ctx, catalog, targetSchema); err != nil {
		return nil, fmt.Errorf("failed to read tables: %w", err)
	}

	// table details write to disjoint table fields, independent objects
	// write to disjoint catalog fields, so both groups can overlap
	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range []struct {
		name string
		f    func(context.Context, *Catalog, string) error
	}{
		{"columns", i.buildColumns},
		{"constraints", i.buildConstraints},
		{"indexes", i.buildIndexes},
		{"enums", i.buildEnums},
		{"views", i.buildViews},
		{"functions", i.buildFunctions},
		{"triggers", i.buildTriggers},
		{"sequences", i.buildSequences},
		{"extensions", i.buildExtensions},
		{"comments", i.buildComments},
	} {
		fn := fn
		g.Go(func() error {
			if err := fn.f(gctx, catalog, targetSchema); err != nil {
				return fmt.Errorf("failed to read %s: %w", fn.name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return catalog, nil
}

func (i *Inspector) checkSchemaExists(ctx context.Context, schema string) error {
	var name string
	err := i.db.QueryRowContext(ctx,
		`SELECT nspname FROM pg_catalog.pg_namespace WHERE nspname = $1`, schema).Scan(&name)
	if err == sql.ErrNoRows {
		return fmt.Errorf("schema %q does not exist", schema)
	}
	return err
}

func (i *Inspector) buildTables(ctx context.Context, catalog *Catalog, schema string) error {
	rows, err := i.db.QueryContext(ctx, `
		SELECT c.relname
		FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relkind = 'r'
		ORDER BY c.relname`, schema)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		catalog.Tables = append(catalog.Tables, &Table{Schema: schema, Name: name})
	}
	return rows.Err()
}

func (i *Inspector) buildColumns(ctx context.Context, catalog *Catalog, schema string) error {
	rows, err := i.db.QueryContext(ctx, `
		SELECT c.relname, a.attname,
		       pg_catalog.format_type(a.atttypid, a.atttypmod),
		       a.attnotnull, a.attgenerated,
		       pg_catalog.pg_get_expr(ad.adbin, ad.adrelid)
		FROM pg_catalog.pg_attribute a
		JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_catalog.pg_attrdef ad
		       ON ad.adrelid = a.attrelid AND ad.adnum = a.attnum
		WHERE n.nspname = $1 AND c.relkind = 'r'
		  AND a.attnum > 0 AND NOT a.attisdropped
		ORDER BY c.relname, a.attnum`, schema)
	if err != nil {
		return err
	}
	defer rows.Close()

	tables := catalog.TableMap()
	for rows.Next() {
		var tableName, colName, dataType, generated string
		var notNull bool
		var expr sql.NullString
		if err := rows.Scan(&tableName, &colName, &dataType, &notNull, &generated, &expr); err != nil {
			return err
		}
		table := tables[Key(schema, tableName)]
		if table == nil {
			continue
		}
		col := &Column{Name: colName, DataType: dataType, NotNull: notNull}
		if expr.Valid {
			if generated == "s" {
				col.Generated = &GeneratedColumn{Always: true, Expression: expr.String, Stored: true}
			} else {
				def := expr.String
				col.Default = &def
			}
		}
		table.Columns = append(table.Columns, col)
	}
	return rows.Err()
}

func (i *Inspector) buildConstraints(ctx context.Context, catalog *Catalog, schema string) error {
	rows, err := i.db.QueryContext(ctx, `
		SELECT c.relname, con.conname, con.contype::text,
		       con.condeferrable, con.condeferred,
		       pg_catalog.pg_get_constraintdef(con.oid),
		       ARRAY(SELECT a.attname
		             FROM unnest(con.conkey) WITH ORDINALITY k(attnum, ord)
		             JOIN pg_catalog.pg_attribute a
		               ON a.attrelid = con.conrelid AND a.attnum = k.attnum
		             ORDER BY k.ord)::text[],
		       COALESCE(rn.nspname, ''), COALESCE(rc.relname, ''),
		       ARRAY(SELECT a.attname
		             FROM unnest(con.confkey) WITH ORDINALITY k(attnum, ord)
		             JOIN pg_catalog.pg_attribute a
		               ON a.attrelid = con.confrelid AND a.attnum = k.attnum
		             ORDER BY k.ord)::text[],
		       con.confdeltype::text, con.confupdtype::text
		FROM pg_catalog.pg_constraint con
		JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_catalog.pg_class rc ON rc.oid = con.confrelid
		LEFT JOIN pg_catalog.pg_namespace rn ON rn.oid = rc.relnamespace
		WHERE n.nspname = $1 AND con.contype IN ('p', 'u', 'c', 'f')
		ORDER BY c.relname, con.conname`, schema)
	if err != nil {
		return err
	}
	defer rows.Close()

	tables := catalog.TableMap()
	for rows.Next() {
		var tableName, conName, conType, conDef string
		var deferrable, deferred bool
		var cols, refCols []string
		var refSchema, refTable, delAction, updAction string
		if err := rows.Scan(&tableName, &conName, &conType, &deferrable, &deferred, &conDef,
			pq.Array(&cols), &refSchema, &refTable, pq.Array(&refCols),
			&delAction, &updAction); err != nil {
			return err
		}
		table := tables[Key(schema, tableName)]
		if table == nil {
			continue
		}
		switch conType {
		case "p":
			table.PrimaryKey = &PrimaryKey{Name: conName, Columns: cols}
		case "u":
			table.Uniques = append(table.Uniques, &UniqueConstraint{
				Name:              conName,
				Columns:           cols,
				Deferrable:        deferrable,
				InitiallyDeferred: deferred,
			})
		case "c":
			table.Checks = append(table.Checks, &CheckConstraint{
				Name:       conName,
				Expression: checkExpression(conDef),
			})
		case "f":
			table.ForeignKeys = append(table.ForeignKeys, &ForeignKey{
				Name:              conName,
				Columns:           cols,
				RefSchema:         refSchema,
				RefTable:          refTable,
				RefColumns:        refCols,
				OnDelete:          refAction(delAction),
				OnUpdate:          refAction(updAction),
				Deferrable:        deferrable,
				InitiallyDeferred: deferred,
			})
		}
	}
	return rows.Err()
}

// checkExpression strips the "CHECK (...)" wrapper from
// pg_get_constraintdef output.
func checkExpression(def string) string {
	s := strings.TrimSpace(def)
	s = strings.TrimPrefix(s, "CHECK")
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}

func (i *Inspector) buildIndexes(ctx context.Context, catalog *Catalog, schema string) error {
	rows, err := i.db.QueryContext(ctx, `
		SELECT ct.relname, ci.relname, am.amname, ix.indisunique,
		       COALESCE(pg_catalog.pg_get_expr(ix.indpred, ix.indrelid), ''),
		       COALESCE(ts.spcname, ''),
		       COALESCE(ci.reloptions, '{}')::text[],
		       COALESCE(con.conname, ''),
		       ix.indkey::text,
		       ARRAY(SELECT pg_catalog.pg_get_indexdef(ix.indexrelid, k.n, true)
		             FROM generate_series(1, ix.indnkeyatts) k(n))::text[],
		       ARRAY(SELECT CASE WHEN opc.opcdefault THEN '' ELSE opc.opcname END
		             FROM unnest(ix.indclass) WITH ORDINALITY o(cls, ord)
		             JOIN pg_catalog.pg_opclass opc ON opc.oid = o.cls
		             ORDER BY o.ord)::text[],
		       ix.indoption::text
		FROM pg_catalog.pg_index ix
		JOIN pg_catalog.pg_class ci ON ci.oid = ix.indexrelid
		JOIN pg_catalog.pg_class ct ON ct.oid = ix.indrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = ct.relnamespace
		JOIN pg_catalog.pg_am am ON am.oid = ci.relam
		LEFT JOIN pg_catalog.pg_tablespace ts ON ts.oid = ci.reltablespace
		LEFT JOIN pg_catalog.pg_constraint con ON con.conindid = ix.indexrelid
		WHERE n.nspname = $1 AND ct.relkind = 'r'
		ORDER BY ct.relname, ci.relname`, schema)
	if err != nil {
		return err
	}
	defer rows.Close()

	tables := catalog.TableMap()
	for rows.Next() {
		var tableName, indexName, method, where, tablespace, backing, indkey, indoption string
		var unique bool
		var reloptions, keys, opclasses []string
		if err := rows.Scan(&tableName, &indexName, &method, &unique, &where,
			&tablespace, pq.Array(&reloptions), &backing, &indkey,
			pq.Array(&keys), pq.Array(&opclasses), &indoption); err != nil {
			return err
		}
		table := tables[Key(schema, tableName)]
		if table == nil {
			continue
		}

		ix := &Index{
			Schema:            schema,
			Table:             tableName,
			Name:              indexName,
			Method:            method,
			Unique:            unique,
			Where:             where,
			Tablespace:        tablespace,
			BackingConstraint: backing,
		}
		for _, opt := range reloptions {
			if k, v, ok := strings.Cut(opt, "="); ok {
				if ix.StorageParams == nil {
					ix.StorageParams = make(map[string]string)
				}
				ix.StorageParams[k] = v
			}
		}

		// indkey entry 0 marks an expression key; per-key text then holds
		// the expression instead of a column name
		attnums := strings.Fields(indkey)
		var exprs []string
		for pos, key := range keys {
			isExpr := pos < len(attnums) && attnums[pos] == "0"
			if isExpr {
				exprs = append(exprs, key)
				continue
			}
			col := strings.Trim(key, `"`)
			if strings.HasSuffix(col, " DESC") {
				col = strings.TrimSuffix(col, " DESC")
				col = strings.Trim(col, `"`)
				if ix.SortOrders == nil {
					ix.SortOrders = make(map[string]string)
				}
				ix.SortOrders[col] = "DESC"
			}
			ix.Columns = append(ix.Columns, col)
			if pos < len(opclasses) && opclasses[pos] != "" {
				if ix.Opclasses == nil {
					ix.Opclasses = make(map[string]string)
				}
				ix.Opclasses[col] = opclasses[pos]
			}
		}
		if len(exprs) > 0 {
			ix.Expression = strings.Join(exprs, ", ")
		}

		table.Indexes = append(table.Indexes, ix)
	}
	return rows.Err()
}

func (i *Inspector) buildEnums(ctx context.Context, catalog *Catalog, schema string) error {
	rows, err := i.db.QueryContext(ctx, `
		SELECT t.typname, e.enumlabel
		FROM pg_catalog.pg_type t
		JOIN pg_catalog.pg_enum e ON e.enumtypid = t.oid
		JOIN pg_catalog.pg_namespace n ON n.oid = t.typnamespace
		WHERE n.nspname = $1
		ORDER BY t.typname, e.enumsortorder`, schema)
	if err != nil {
		return err
	}
	defer rows.Close()

	byName := make(map[string]*EnumType)
	for rows.Next() {
		var typName, label string
		if err := rows.Scan(&typName, &label); err != nil {
			return err
		}
		enum := byName[typName]
		if enum == nil {
			enum = &EnumType{Schema: schema, Name: typName}
			byName[typName] = enum
			catalog.Enums = append(catalog.Enums, enum)
		}
		enum.Values = append(enum.Values, label)
	}
	return rows.Err()
}

func (i *Inspector) buildViews(ctx context.Context, catalog *Catalog, schema string) error {
	rows, err := i.db.QueryContext(ctx, `
		SELECT c.relname, c.relkind::text,
		       pg_catalog.pg_get_viewdef(c.oid, true),
		       COALESCE(c.reloptions, '{}')::text[]
		FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relkind IN ('v', 'm')
		ORDER BY c.relname`, schema)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name, kind, def string
		var reloptions []string
		if err := rows.Scan(&name, &kind, &def, pq.Array(&reloptions)); err != nil {
			return err
		}
		view := &View{
			Schema:       schema,
			Name:         name,
			Definition:   strings.TrimSuffix(strings.TrimSpace(def), ";"),
			Materialized: kind == "m",
		}
		for _, opt := range reloptions {
			k, v, _ := strings.Cut(opt, "=")
			switch k {
			case "check_option":
				view.CheckOption = strings.ToUpper(v)
			case "security_barrier":
				view.SecurityBarrier = v == "true" || v == "on"
			}
		}
		catalog.Views = append(catalog.Views, view)
	}
	return rows.Err()
}

// buildFunctions reads back complete definitions and runs them through
// the DDL parser, so both sides of a diff use the same model of a
// function.
func (i *Inspector) buildFunctions(ctx context.Context, catalog *Catalog, schema string) error {
	rows, err := i.db.QueryContext(ctx, `
		SELECT p.proname, pg_catalog.pg_get_functiondef(p.oid)
		FROM pg_catalog.pg_proc p
		JOIN pg_catalog.pg_namespace n ON n.oid = p.pronamespace
		JOIN pg_catalog.pg_language l ON l.oid = p.prolang
		WHERE n.nspname = $1
		  AND p.prokind IN ('f', 'p')
		  AND l.lanname NOT IN ('internal', 'c')
		  AND NOT EXISTS (
		        SELECT 1 FROM pg_catalog.pg_depend d
		        WHERE d.objid = p.oid AND d.deptype = 'e')
		ORDER BY p.proname`, schema)
	if err != nil {
		return err
	}
	defer rows.Close()

	parser := NewParser(schema)
	parser.catalog = catalog
	for rows.Next() {
		var name, def string
		if err := rows.Scan(&name, &def); err != nil {
			return err
		}
		result, err := pg_query.Parse(def)
		if err != nil {
			logger.Get().Warn("skipping unparseable function definition", "function", name, "error", err)
			continue
		}
		for _, raw := range result.Stmts {
			if fn := raw.Stmt.GetCreateFunctionStmt(); fn != nil {
				if err := parser.parseCreateFunction(fn); err != nil {
					return err
				}
			}
		}
	}
	return rows.Err()
}

// buildTriggers feeds pg_get_triggerdef output back through the DDL
// parser, the same round-trip as functions, so both diff sides share
// one trigger model.
func (i *Inspector) buildTriggers(ctx context.Context, catalog *Catalog, schema string) error {
	rows, err := i.db.QueryContext(ctx, `
		SELECT t.tgname, pg_catalog.pg_get_triggerdef(t.oid)
		FROM pg_catalog.pg_trigger t
		JOIN pg_catalog.pg_class c ON c.oid = t.tgrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1
		  AND NOT t.tgisinternal
		ORDER BY c.relname, t.tgname`, schema)
	if err != nil {
		return err
	}
	defer rows.Close()

	parser := NewParser(schema)
	parser.catalog = catalog
	for rows.Next() {
		var name, def string
		if err := rows.Scan(&name, &def); err != nil {
			return err
		}
		result, err := pg_query.Parse(def)
		if err != nil {
			logger.Get().Warn("skipping unparseable trigger definition", "trigger", name, "error", err)
			continue
		}
		for _, raw := range result.Stmts {
			if trig := raw.Stmt.GetCreateTrigStmt(); trig != nil {
				if err := parser.parseCreateTrigger(trig); err != nil {
					return err
				}
			}
		}
	}
	return rows.Err()
}

func (i *Inspector) buildSequences(ctx context.Context, catalog *Catalog, schema string) error {
	rows, err := i.db.QueryContext(ctx, `
		SELECT c.relname, s.seqtypid::regtype::text,
		       s.seqincrement, s.seqmin, s.seqmax, s.seqstart, s.seqcache, s.seqcycle,
		       COALESCE(ot.relname, ''), COALESCE(oa.attname, '')
		FROM pg_catalog.pg_sequence s
		JOIN pg_catalog.pg_class c ON c.oid = s.seqrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_catalog.pg_depend d
		       ON d.objid = c.oid AND d.deptype = 'a' AND d.refobjsubid > 0
		LEFT JOIN pg_catalog.pg_class ot ON ot.oid = d.refobjid
		LEFT JOIN pg_catalog.pg_attribute oa
		       ON oa.attrelid = d.refobjid AND oa.attnum = d.refobjsubid
		WHERE n.nspname = $1
		ORDER BY c.relname`, schema)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var seq Sequence
		var minValue, maxValue int64
		if err := rows.Scan(&seq.Name, &seq.DataType, &seq.Increment,
			&minValue, &maxValue, &seq.Start, &seq.Cache, &seq.Cycle,
			&seq.OwnedByTable, &seq.OwnedByColumn); err != nil {
			return err
		}
		seq.Schema = schema
		seq.MinValue = &minValue
		seq.MaxValue = &maxValue
		catalog.Sequences = append(catalog.Sequences, &seq)
	}
	return rows.Err()
}

func (i *Inspector) buildExtensions(ctx context.Context, catalog *Catalog, schema string) error {
	rows, err := i.db.QueryContext(ctx, `
		SELECT e.extname, n.nspname, e.extversion
		FROM pg_catalog.pg_extension e
		JOIN pg_catalog.pg_namespace n ON n.oid = e.extnamespace
		WHERE e.extname <> 'plpgsql'
		ORDER BY e.extname`, schema)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var ext Extension
		if err := rows.Scan(&ext.Name, &ext.Schema, &ext.Version); err != nil {
			return err
		}
		catalog.Extensions = append(catalog.Extensions, &ext)
	}
	return rows.Err()
}

func (i *Inspector) buildComments(ctx context.Context, catalog *Catalog, schema string) error {
	// object comments: tables, views, indexes, then column comments, then
	// type comments
	rows, err := i.db.QueryContext(ctx, `
		SELECT c.relkind::text, c.relname, d.description
		FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_catalog.pg_description d ON d.objoid = c.oid AND d.objsubid = 0
		WHERE n.nspname = $1 AND c.relkind IN ('r', 'v', 'm', 'i')
		ORDER BY c.relname`, schema)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var kind, name, text string
		if err := rows.Scan(&kind, &name, &text); err != nil {
			return err
		}
		target := CommentOnTable
		switch kind {
		case "v", "m":
			target = CommentOnView
		case "i":
			target = CommentOnIndex
		}
		catalog.Comments = append(catalog.Comments, &Comment{
			Target: target, Schema: schema, Object: name, Text: text,
		})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	colRows, err := i.db.QueryContext(ctx, `
		SELECT c.relname, a.attname, d.description
		FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_catalog.pg_attribute a ON a.attrelid = c.oid AND a.attnum > 0
		JOIN pg_catalog.pg_description d ON d.objoid = c.oid AND d.objsubid = a.attnum
		WHERE n.nspname = $1 AND c.relkind = 'r' AND NOT a.attisdropped
		ORDER BY c.relname, a.attnum`, schema)
	if err != nil {
		return err
	}
	defer colRows.Close()
	for colRows.Next() {
		var table, column, text string
		if err := colRows.Scan(&table, &column, &text); err != nil {
			return err
		}
		catalog.Comments = append(catalog.Comments, &Comment{
			Target: CommentOnColumn, Schema: schema, Object: table, Column: column, Text: text,
		})
	}
	if err := colRows.Err(); err != nil {
		return err
	}

	typeRows, err := i.db.QueryContext(ctx, `
		SELECT t.typname, d.description
		FROM pg_catalog.pg_type t
		JOIN pg_catalog.pg_namespace n ON n.oid = t.typnamespace
		JOIN pg_catalog.pg_description d ON d.objoid = t.oid AND d.objsubid = 0
		WHERE n.nspname = $1 AND t.typtype = 'e'
		ORDER BY t.typname`, schema)
	if err != nil {
		return err
	}
	defer typeRows.Close()
	for typeRows.Next() {
		var name, text string
		if err := typeRows.Scan(&name, &text); err != nil {
			return err
		}
		catalog.Comments = append(catalog.Comments, &Comment{
			Target: CommentOnType, Schema: schema, Object: name, Text: text,
		})
	}
	return typeRows.Err()
}
