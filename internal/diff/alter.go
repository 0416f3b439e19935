package diff

import (
	"sort"
	"strings"

	"github.com/pgdelta/pgdelta/internal/compare"
	"github.com/pgdelta/pgdelta/internal/ir"
	"github.com/pgdelta/pgdelta/internal/sqlbuild"
)

// Batched ALTER TABLE action priorities. Drops come before column
// changes, which come before adds, so no action depends on one that
// runs after it.
const (
	prioDropFK      = 0
	prioDropUnique  = 1
	prioDropCheck   = 2
	prioDropPK      = 3
	prioDropColumn  = 4
	prioAlterType   = 10
	prioSetDefault  = 11
	prioDropDefault = 12
	prioSetNotNull  = 13
	prioDropNotNull = 14
	prioAddColumn   = 20
	prioAddPK       = 21
	prioAddCheck    = 22
	prioAddUnique   = 23
	prioAddFK       = 24
)

// alterOps collects the actions of one batched ALTER TABLE. Actions
// sort by priority; equal priorities keep emission order, which lets a
// type change slot its conflicting-default drop immediately before
// itself.
type alterOps struct {
	actions []alterAction
}

type alterAction struct {
	priority int
	seq      int
	sql      string
}

func (o *alterOps) add(priority int, sql string) {
	o.actions = append(o.actions, alterAction{priority: priority, seq: len(o.actions), sql: sql})
}

func (o *alterOps) render(t *ir.Table) string {
	if len(o.actions) == 0 {
		return ""
	}
	sort.SliceStable(o.actions, func(i, j int) bool {
		if o.actions[i].priority != o.actions[j].priority {
			return o.actions[i].priority < o.actions[j].priority
		}
		return o.actions[i].seq < o.actions[j].seq
	})
	parts := make([]string, len(o.actions))
	for i, a := range o.actions {
		parts[i] = a.sql
	}
	return sqlbuild.New().
		Phrase("ALTER TABLE").Table(t.Schema, t.Name).
		Phrase(strings.Join(parts, ", ")).
		Terminate()
}

func (d *differ) alterTable(desired, current *ir.Table) {
	ops := &alterOps{}

	droppedCols := make(map[string]bool)
	for _, c := range current.Columns {
		if desired.Column(c.Name) == nil {
			droppedCols[c.Name] = true
		}
	}

	diffForeignKeys(ops, desired, current, droppedCols, d.droppedTables)
	diffChecks(ops, desired, current)
	diffUniques(ops, desired, current)
	diffPrimaryKey(ops, desired, current)
	diffColumns(ops, desired, current)

	d.plan.Add(ops.render(desired))
}

// ---- columns ----

func diffColumns(ops *alterOps, desired, current *ir.Table) {
	for _, c := range current.Columns {
		if desired.Column(c.Name) == nil {
			ops.add(prioDropColumn, "DROP COLUMN "+sqlbuild.QuoteIdent(c.Name))
		}
	}
	for _, dc := range desired.Columns {
		cc := current.Column(dc.Name)
		if cc == nil {
			ops.add(prioAddColumn, "ADD COLUMN "+columnDef(dc))
			continue
		}
		modifyColumn(ops, dc, cc)
	}
}

func modifyColumn(ops *alterOps, desired, current *ir.Column) {
	// generated columns cannot be altered in place
	if generatedChanged(desired, current) {
		ops.add(prioDropColumn, "DROP COLUMN "+sqlbuild.QuoteIdent(desired.Name))
		ops.add(prioAddColumn, "ADD COLUMN "+columnDef(desired))
		return
	}

	col := sqlbuild.QuoteIdent(desired.Name)
	typeChanged := !ir.TypesEquivalent(desired.DataType, current.DataType)
	defaultChanged := !defaultsEqual(desired.Default, current.Default)

	if typeChanged {
		// an existing default may be invalid under the new type; drop it
		// first, retype, then re-establish the desired default
		if current.Default != nil {
			ops.add(prioAlterType, "ALTER COLUMN "+col+" DROP DEFAULT")
		}
		action := "ALTER COLUMN " + col + " TYPE " + desired.DataType
		if using := usingClause(col, current.DataType, desired.DataType); using != "" {
			action += " USING " + using
		}
		ops.add(prioAlterType, action)
		if desired.Default != nil {
			ops.add(prioSetDefault, "ALTER COLUMN "+col+" SET DEFAULT "+*desired.Default)
		}
	} else if defaultChanged {
		if desired.Default == nil {
			ops.add(prioDropDefault, "ALTER COLUMN "+col+" DROP DEFAULT")
		} else {
			ops.add(prioSetDefault, "ALTER COLUMN "+col+" SET DEFAULT "+*desired.Default)
		}
	}

	if desired.NotNull != current.NotNull {
		if desired.NotNull {
			ops.add(prioSetNotNull, "ALTER COLUMN "+col+" SET NOT NULL")
		} else {
			ops.add(prioDropNotNull, "ALTER COLUMN "+col+" DROP NOT NULL")
		}
	}
}

func generatedChanged(desired, current *ir.Column) bool {
	if (desired.Generated == nil) != (current.Generated == nil) {
		return true
	}
	if desired.Generated == nil {
		return false
	}
	return !compare.Equal(desired.Generated.Expression, current.Generated.Expression)
}

func defaultsEqual(a, b *string) bool {
	// normalization also maps an explicit NULL default to no default
	if ir.DefaultsEquivalent(a, b) {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return compare.Equal(*a, *b)
}

// usingClause builds the explicit conversion needed for casts
// PostgreSQL will not perform implicitly, text-ish to numeric, integer
// or boolean. Safe conversions return "" and use the implicit cast.
func usingClause(quotedCol, fromType, toType string) string {
	if !textish(fromType) || textish(toType) {
		return ""
	}
	to := ir.NormalizeType(toType)
	switch {
	case strings.HasPrefix(to, "INT"):
		return "TRUNC(" + quotedCol + "::DECIMAL)::" + toType
	case to == "BOOLEAN":
		return "TRIM(" + quotedCol + ")::" + toType
	default:
		return quotedCol + "::" + toType
	}
}

func textish(typ string) bool {
	t := ir.NormalizeType(typ)
	return t == "TEXT" || strings.HasPrefix(t, "VARCHAR") || strings.HasPrefix(t, "CHAR")
}

// ---- primary key ----

func diffPrimaryKey(ops *alterOps, desired, current *ir.Table) {
	dpk, cpk := desired.PrimaryKey, current.PrimaryKey
	// names are routinely autogenerated; only the ordered column list
	// identifies a primary key
	same := dpk != nil && cpk != nil && columnsEqual(dpk.Columns, cpk.Columns)
	if same || (dpk == nil && cpk == nil) {
		return
	}
	if cpk != nil {
		ops.add(prioDropPK, "DROP CONSTRAINT "+sqlbuild.QuoteIdent(pkName(current, cpk)))
	}
	if dpk != nil {
		ops.add(prioAddPK, "ADD CONSTRAINT "+sqlbuild.QuoteIdent(pkName(desired, dpk))+
			" PRIMARY KEY ("+sqlbuild.QuoteIdentList(dpk.Columns)+")")
	}
}

// ---- checks ----

func diffChecks(ops *alterOps, desired, current *ir.Table) {
	matched := make(map[*ir.CheckConstraint]*ir.CheckConstraint)
	usedCurrent := make(map[*ir.CheckConstraint]bool)
	for _, dc := range desired.Checks {
		for _, cc := range current.Checks {
			if !usedCurrent[cc] && compare.Equal(dc.Expression, cc.Expression) {
				matched[dc] = cc
				usedCurrent[cc] = true
				break
			}
		}
	}

	for _, cc := range current.Checks {
		if !usedCurrent[cc] {
			ops.add(prioDropCheck, "DROP CONSTRAINT "+sqlbuild.QuoteIdent(cc.Name))
		}
	}
	for _, dc := range desired.Checks {
		cc := matched[dc]
		if cc != nil && (dc.Name == "" || dc.Name == cc.Name) {
			continue
		}
		// a rename is a drop plus add: PostgreSQL has no in-place rename
		// the engine can verify
		if cc != nil {
			ops.add(prioDropCheck, "DROP CONSTRAINT "+sqlbuild.QuoteIdent(cc.Name))
		}
		ops.add(prioAddCheck, "ADD CONSTRAINT "+sqlbuild.QuoteIdent(checkName(desired, dc))+
			" CHECK ("+dc.Expression+")")
	}
}

// ---- uniques ----

func diffUniques(ops *alterOps, desired, current *ir.Table) {
	currentBySet := make(map[string]*ir.UniqueConstraint)
	for _, u := range current.Uniques {
		currentBySet[strings.Join(u.SortedColumns(), ",")] = u
	}

	desiredSets := make(map[string]bool)
	for _, du := range desired.Uniques {
		set := strings.Join(du.SortedColumns(), ",")
		desiredSets[set] = true
		cu := currentBySet[set]
		if cu != nil &&
			(du.Name == "" || du.Name == cu.Name) &&
			du.Deferrable == cu.Deferrable &&
			du.InitiallyDeferred == cu.InitiallyDeferred {
			continue
		}
		if cu != nil {
			ops.add(prioDropUnique, "DROP CONSTRAINT "+sqlbuild.QuoteIdent(cu.Name))
		}
		ops.add(prioAddUnique, "ADD CONSTRAINT "+sqlbuild.QuoteIdent(uniqueName(desired, du))+
			" "+uniqueClause(du))
	}

	for set, cu := range currentBySet {
		if !desiredSets[set] {
			ops.add(prioDropUnique, "DROP CONSTRAINT "+sqlbuild.QuoteIdent(cu.Name))
		}
	}
}

// ---- foreign keys ----

func fkStructuralKey(fk *ir.ForeignKey) string {
	return strings.Join(fk.Columns, ",") + "->" + fk.RefKey() + "." + strings.Join(fk.RefColumns, ",")
}

func fksEqual(a, b *ir.ForeignKey) bool {
	return columnsEqual(a.Columns, b.Columns) &&
		a.RefKey() == b.RefKey() &&
		columnsEqual(a.RefColumns, b.RefColumns) &&
		a.OnDelete.Normalize() == b.OnDelete.Normalize() &&
		a.OnUpdate.Normalize() == b.OnUpdate.Normalize() &&
		a.Deferrable == b.Deferrable &&
		a.InitiallyDeferred == b.InitiallyDeferred
}

func diffForeignKeys(ops *alterOps, desired, current *ir.Table, droppedCols, droppedTables map[string]bool) {
	currentByName := make(map[string]*ir.ForeignKey)
	currentByStruct := make(map[string]*ir.ForeignKey)
	for _, fk := range current.ForeignKeys {
		currentByName[fk.Name] = fk
		currentByStruct[fkStructuralKey(fk)] = fk
	}

	usedCurrent := make(map[*ir.ForeignKey]bool)
	for _, dfk := range desired.ForeignKeys {
		var cfk *ir.ForeignKey
		if dfk.Name != "" {
			cfk = currentByName[dfk.Name]
		} else {
			cfk = currentByStruct[fkStructuralKey(dfk)]
		}
		if cfk != nil && !usedCurrent[cfk] && fksEqual(dfk, cfk) {
			usedCurrent[cfk] = true
			continue
		}
		if cfk != nil && !usedCurrent[cfk] {
			usedCurrent[cfk] = true
			if !droppedTables[cfk.RefKey()] {
				ops.add(prioDropFK, "DROP CONSTRAINT "+sqlbuild.QuoteIdent(cfk.Name))
			}
		}
		ops.add(prioAddFK, "ADD CONSTRAINT "+sqlbuild.QuoteIdent(fkName(desired, dfk))+
			" "+fkClause(dfk))
	}

	for _, cfk := range current.ForeignKeys {
		if usedCurrent[cfk] {
			continue
		}
		// dropping a local column takes its FKs with it, and dropping
		// the referenced table cascades over them
		if anyColumnIn(cfk.Columns, droppedCols) || droppedTables[cfk.RefKey()] {
			continue
		}
		ops.add(prioDropFK, "DROP CONSTRAINT "+sqlbuild.QuoteIdent(cfk.Name))
	}
}

func anyColumnIn(cols []string, set map[string]bool) bool {
	for _, c := range cols {
		if set[c] {
			return true
		}
	}
	return false
}

func columnsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
