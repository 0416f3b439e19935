package diff

import (
	"strings"

	"github.com/pgdelta/pgdelta/internal/depgraph"
	"github.com/pgdelta/pgdelta/internal/ir"
	"github.com/pgdelta/pgdelta/internal/sqlbuild"
)

func (d *differ) diffTables() error {
	currentMap := d.current.TableMap()
	desiredMap := d.desired.TableMap()

	var added []*ir.Table
	for _, t := range d.desired.Tables {
		if currentMap[t.Key()] == nil {
			added = append(added, t)
		}
	}
	var dropped []*ir.Table
	for _, t := range d.current.Tables {
		if desiredMap[t.Key()] == nil {
			dropped = append(dropped, t)
			d.droppedTables[t.Key()] = true
		}
	}

	d.dropTables(dropped)
	d.createTables(added)

	for _, t := range d.desired.Tables {
		if c := currentMap[t.Key()]; c != nil {
			d.alterTable(t, c)
			d.diffIndexes(t, c)
			d.diffTriggers(t, c)
		}
	}
	return nil
}

// dropTables removes tables in reverse dependency order. FK cycles
// among the dropped set are broken by dropping the cycle-forming
// constraints first; CASCADE then takes care of inbound references
// from surviving objects.
func (d *differ) dropTables(tables []*ir.Table) {
	if len(tables) == 0 {
		return
	}
	det := depgraph.New(tables).DeletionOrderWithDetachment()
	for _, dfk := range det.DeferredFKs {
		d.plan.Add(sqlbuild.New().
			Phrase("ALTER TABLE").Table(dfk.Table.Schema, dfk.Table.Name).
			Phrase("DROP CONSTRAINT").Ident(fkName(dfk.Table, dfk.FK)).
			Terminate())
	}
	for _, t := range det.Order {
		d.plan.Add(sqlbuild.New().
			Phrase("DROP TABLE").Table(t.Schema, t.Name).
			Phrase("CASCADE").
			Terminate())
	}
}

// createTables emits CREATE TABLE in dependency order. FKs that close a
// cycle are left out of the CREATE and added in the deferred phase once
// every table exists. Indexes on brand-new tables are created without
// CONCURRENTLY: the tables are empty and the build is instant.
func (d *differ) createTables(tables []*ir.Table) {
	if len(tables) == 0 {
		return
	}
	det := depgraph.New(tables).CreationOrderWithDetachment()
	deferred := make(map[*ir.ForeignKey]bool, len(det.DeferredFKs))
	for _, dfk := range det.DeferredFKs {
		deferred[dfk.FK] = true
	}

	for _, t := range det.Order {
		d.plan.Add(createTableSQL(t, deferred))
		for _, ix := range t.Indexes {
			d.plan.Add(createIndexSQL(ix, false))
		}
		for _, tr := range t.Triggers {
			d.plan.Add(createTriggerSQL(tr))
		}
	}

	for _, dfk := range det.DeferredFKs {
		d.plan.AddDeferred(sqlbuild.New().
			Phrase("ALTER TABLE").Table(dfk.Table.Schema, dfk.Table.Name).
			Phrase("ADD CONSTRAINT").Ident(fkName(dfk.Table, dfk.FK)).
			Phrase(fkClause(dfk.FK)).
			Terminate())
	}
}

func createTableSQL(t *ir.Table, skipFKs map[*ir.ForeignKey]bool) string {
	var defs []string
	for _, col := range t.Columns {
		defs = append(defs, "    "+columnDef(col))
	}
	if pk := t.PrimaryKey; pk != nil {
		defs = append(defs, "    CONSTRAINT "+sqlbuild.QuoteIdent(pkName(t, pk))+
			" PRIMARY KEY ("+sqlbuild.QuoteIdentList(pk.Columns)+")")
	}
	for _, u := range t.Uniques {
		defs = append(defs, "    CONSTRAINT "+sqlbuild.QuoteIdent(uniqueName(t, u))+
			" "+uniqueClause(u))
	}
	for _, c := range t.Checks {
		defs = append(defs, "    CONSTRAINT "+sqlbuild.QuoteIdent(checkName(t, c))+
			" CHECK ("+c.Expression+")")
	}
	for _, fk := range t.ForeignKeys {
		if skipFKs[fk] {
			continue
		}
		defs = append(defs, "    CONSTRAINT "+sqlbuild.QuoteIdent(fkName(t, fk))+
			" "+fkClause(fk))
	}

	return sqlbuild.New().
		Phrase("CREATE TABLE").Table(t.Schema, t.Name).Phrase("(").Newline().
		Phrase(strings.Join(defs, ",\n")).Newline().
		Phrase(")").
		Terminate()
}

func columnDef(col *ir.Column) string {
	parts := []string{sqlbuild.QuoteIdent(col.Name), col.DataType}
	if col.Generated != nil {
		parts = append(parts, "GENERATED ALWAYS AS ("+col.Generated.Expression+") STORED")
	} else if col.Default != nil {
		parts = append(parts, "DEFAULT "+*col.Default)
	}
	if col.NotNull {
		parts = append(parts, "NOT NULL")
	}
	return strings.Join(parts, " ")
}

func uniqueClause(u *ir.UniqueConstraint) string {
	s := "UNIQUE (" + sqlbuild.QuoteIdentList(u.Columns) + ")"
	return s + deferrability(u.Deferrable, u.InitiallyDeferred)
}

func fkClause(fk *ir.ForeignKey) string {
	s := "FOREIGN KEY (" + sqlbuild.QuoteIdentList(fk.Columns) + ") REFERENCES " +
		sqlbuild.QualifiedName(fk.RefSchema, fk.RefTable) +
		" (" + sqlbuild.QuoteIdentList(fk.RefColumns) + ")"
	if a := fk.OnDelete.Normalize(); a != ir.RefActionNoAction {
		s += " ON DELETE " + string(a)
	}
	if a := fk.OnUpdate.Normalize(); a != ir.RefActionNoAction {
		s += " ON UPDATE " + string(a)
	}
	return s + deferrability(fk.Deferrable, fk.InitiallyDeferred)
}

func deferrability(deferrable, initiallyDeferred bool) string {
	if !deferrable {
		return ""
	}
	if initiallyDeferred {
		return " DEFERRABLE INITIALLY DEFERRED"
	}
	return " DEFERRABLE"
}
