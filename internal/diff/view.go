package diff

import (
	"github.com/pgdelta/pgdelta/internal/compare"
	"github.com/pgdelta/pgdelta/internal/ir"
	"github.com/pgdelta/pgdelta/internal/sqlbuild"
)

func (d *differ) viewHandler() handler[*ir.View] {
	return handler[*ir.View]{
		key:   func(v *ir.View) string { return v.Key() },
		equal: viewsEqual,
		create: func(v *ir.View) error {
			d.plan.Add(createViewSQL(v, false))
			return nil
		},
		drop: func(v *ir.View) error {
			d.plan.Add(dropViewSQL(v))
			return nil
		},
		update: func(desired, current *ir.View) error {
			// a materialized view has storage and cannot be replaced in
			// place; a plain view can, unless it is changing kind
			if desired.Materialized || current.Materialized {
				d.plan.Add(dropViewSQL(current))
				d.plan.Add(createViewSQL(desired, false))
				return nil
			}
			d.plan.Add(createViewSQL(desired, true))
			return nil
		},
	}
}

func (d *differ) dropViews() {
	_ = d.viewHandler().applyDrops(d.desired.Views, d.current.Views)
}

func (d *differ) createAndUpdateViews() {
	_ = d.viewHandler().applyCreatesAndUpdates(d.desired.Views, d.current.Views)
}

func viewsEqual(a, b *ir.View) bool {
	return a.Materialized == b.Materialized &&
		a.CheckOption == b.CheckOption &&
		a.SecurityBarrier == b.SecurityBarrier &&
		compare.EqualStatements(a.Definition, b.Definition)
}

func dropViewSQL(v *ir.View) string {
	b := sqlbuild.New().Phrase("DROP")
	if v.Materialized {
		b.Phrase("MATERIALIZED")
	}
	return b.Phrase("VIEW").Table(v.Schema, v.Name).Terminate()
}

func createViewSQL(v *ir.View, orReplace bool) string {
	b := sqlbuild.New().Phrase("CREATE")
	if orReplace {
		b.Phrase("OR REPLACE")
	}
	if v.Materialized {
		b.Phrase("MATERIALIZED")
	}
	b.Phrase("VIEW").Table(v.Schema, v.Name)
	if v.SecurityBarrier {
		b.Phrase("WITH (security_barrier = true)")
	}
	b.Phrase("AS").Newline().Indent().Phrase(v.Definition).Outdent()
	if v.CheckOption != "" && !v.Materialized {
		b.Newline().Phrase("WITH " + v.CheckOption + " CHECK OPTION")
	}
	return b.Terminate()
}
