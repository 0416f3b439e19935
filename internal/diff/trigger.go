package diff

import (
	"strings"

	"github.com/pgdelta/pgdelta/internal/compare"
	"github.com/pgdelta/pgdelta/internal/ir"
	"github.com/pgdelta/pgdelta/internal/sqlbuild"
)

// diffTriggers reconciles one table's triggers by name. A trigger whose
// function was just replaced is re-created even when its own definition
// is unchanged: the function's DROP ... CASCADE took it down.
func (d *differ) diffTriggers(desired, current *ir.Table) {
	currentByName := make(map[string]*ir.Trigger)
	for _, tr := range current.Triggers {
		currentByName[tr.Name] = tr
	}

	desiredNames := make(map[string]bool)
	for _, dtr := range desired.Triggers {
		desiredNames[dtr.Name] = true
		ctr := currentByName[dtr.Name]
		switch {
		case ctr == nil:
			d.plan.Add(createTriggerSQL(dtr))
		case d.functionReplaced(ctr.Function):
			// the function's DROP ... CASCADE already removed the trigger
			d.plan.Add(createTriggerSQL(dtr))
		case !triggersEqual(dtr, ctr):
			d.plan.Add(dropTriggerSQL(ctr))
			d.plan.Add(createTriggerSQL(dtr))
		}
	}

	for _, ctr := range current.Triggers {
		if desiredNames[ctr.Name] {
			continue
		}
		// the function diff may already have cascaded this trigger away
		if d.functionReplaced(ctr.Function) {
			continue
		}
		d.plan.Add(dropTriggerSQL(ctr))
	}
}

func triggersEqual(a, b *ir.Trigger) bool {
	if a.Timing != b.Timing || a.ForEach != b.ForEach || a.Function != b.Function {
		return false
	}
	if len(a.Events) != len(b.Events) {
		return false
	}
	for i := range a.Events {
		if a.Events[i] != b.Events[i] {
			return false
		}
	}
	if a.When == "" || b.When == "" {
		return a.When == b.When
	}
	return compare.Equal(a.When, b.When)
}

// functionReplaced reports whether the named function call targets a
// function the plan drops and re-creates.
func (d *differ) functionReplaced(call string) bool {
	name := call
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	return d.replacedFuncs[name]
}

func dropTriggerSQL(tr *ir.Trigger) string {
	return sqlbuild.New().
		Phrase("DROP TRIGGER").Ident(tr.Name).
		Phrase("ON").Table(tr.Schema, tr.Table).
		Terminate()
}

func createTriggerSQL(tr *ir.Trigger) string {
	b := sqlbuild.New().
		Phrase("CREATE TRIGGER").Ident(tr.Name).
		Phrase(string(tr.Timing)).
		Phrase(strings.Join(tr.Events, " OR ")).
		Phrase("ON").Table(tr.Schema, tr.Table).
		Phrase("FOR EACH").Phrase(tr.ForEach)
	if tr.When != "" {
		b.Phrase("WHEN (" + tr.When + ")")
	}
	b.Phrase("EXECUTE FUNCTION").Phrase(tr.Function)
	return b.Terminate()
}
