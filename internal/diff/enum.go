package diff

import (
	"strings"

	"github.com/lib/pq"

	"github.com/pgdelta/pgdelta/internal/ir"
	"github.com/pgdelta/pgdelta/internal/sqlbuild"
)

func (d *differ) enumHandler() handler[*ir.EnumType] {
	return handler[*ir.EnumType]{
		key:   func(e *ir.EnumType) string { return e.Key() },
		equal: enumsEqual,
		create: func(e *ir.EnumType) error {
			d.plan.Add(createEnumSQL(e))
			return nil
		},
		drop: func(e *ir.EnumType) error {
			d.plan.Add(sqlbuild.New().
				Phrase("DROP TYPE").Table(e.Schema, e.Name).
				Terminate())
			return nil
		},
		update: d.updateEnum,
	}
}

func (d *differ) upsertEnums() error {
	return d.enumHandler().applyCreatesAndUpdates(d.desired.Enums, d.current.Enums)
}

func (d *differ) dropEnums() {
	// drop generates no errors; ignore the skeleton's error channel
	_ = d.enumHandler().applyDrops(d.desired.Enums, d.current.Enums)
}

func enumsEqual(a, b *ir.EnumType) bool {
	if len(a.Values) != len(b.Values) {
		return false
	}
	for i := range a.Values {
		if a.Values[i] != b.Values[i] {
			return false
		}
	}
	return true
}

// updateEnum appends trailing values with ALTER TYPE ADD VALUE. Any
// removal or reorder is refused: PostgreSQL cannot drop an enum value,
// and faking it would lose data.
func (d *differ) updateEnum(desired, current *ir.EnumType) error {
	if len(desired.Values) < len(current.Values) {
		return &ManualInterventionError{
			Object:  "enum " + current.Key(),
			Reason:  "enum values cannot be removed",
			Current: current.Values,
			Desired: desired.Values,
		}
	}
	for i, v := range current.Values {
		if desired.Values[i] != v {
			return &ManualInterventionError{
				Object:  "enum " + current.Key(),
				Reason:  "enum values cannot be reordered",
				Current: current.Values,
				Desired: desired.Values,
			}
		}
	}
	for _, v := range desired.Values[len(current.Values):] {
		d.plan.Add(sqlbuild.New().
			Phrase("ALTER TYPE").Table(desired.Schema, desired.Name).
			Phrase("ADD VALUE").Phrase(pq.QuoteLiteral(v)).
			Terminate())
	}
	return nil
}

func createEnumSQL(e *ir.EnumType) string {
	vals := make([]string, len(e.Values))
	for i, v := range e.Values {
		vals[i] = pq.QuoteLiteral(v)
	}
	return sqlbuild.New().
		Phrase("CREATE TYPE").Table(e.Schema, e.Name).
		Phrase("AS ENUM").Phrase("(" + strings.Join(vals, ", ") + ")").
		Terminate()
}
