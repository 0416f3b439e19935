package diff

import (
	"strconv"
	"strings"

	"github.com/pgdelta/pgdelta/internal/ir"
	"github.com/pgdelta/pgdelta/internal/sqlbuild"
)

func (d *differ) functionHandler() handler[*ir.Function] {
	return handler[*ir.Function]{
		key:   func(f *ir.Function) string { return f.Key() },
		equal: functionsEqual,
		create: func(f *ir.Function) error {
			d.plan.Add(createFunctionSQL(f))
			return nil
		},
		drop: func(f *ir.Function) error {
			d.plan.Add(dropFunctionSQL(f))
			return nil
		},
		update: func(desired, current *ir.Function) error {
			// CASCADE takes dependent triggers along; the trigger diff
			// re-creates them
			d.plan.Add(dropFunctionSQL(current))
			d.plan.Add(createFunctionSQL(desired))
			d.replacedFuncs[desired.Name] = true
			d.replacedFuncs[desired.Schema+"."+desired.Name] = true
			return nil
		},
	}
}

func (d *differ) upsertFunctions() {
	_ = d.functionHandler().applyCreatesAndUpdates(d.desired.Functions, d.current.Functions)
}

func (d *differ) dropFunctions() {
	_ = d.functionHandler().applyDrops(d.desired.Functions, d.current.Functions)
}

func functionsEqual(a, b *ir.Function) bool {
	if strings.TrimSpace(a.Body) != strings.TrimSpace(b.Body) ||
		!strings.EqualFold(a.Language, b.Language) ||
		!ir.TypesEquivalent(a.Returns, b.Returns) ||
		a.Strict != b.Strict ||
		a.SecurityDefiner != b.SecurityDefiner ||
		a.IsProcedure != b.IsProcedure {
		return false
	}
	// an unspecified volatility means the VOLATILE default
	if volatility(a) != volatility(b) {
		return false
	}
	if len(a.Params) != len(b.Params) {
		return false
	}
	for i := range a.Params {
		pa, pb := a.Params[i], b.Params[i]
		if pa.Name != pb.Name || pa.Mode != pb.Mode || !ir.TypesEquivalent(pa.Type, pb.Type) {
			return false
		}
	}
	return true
}

func volatility(f *ir.Function) string {
	if f.Volatility == "" {
		return "VOLATILE"
	}
	return f.Volatility
}

func dropFunctionSQL(f *ir.Function) string {
	kind := "FUNCTION"
	if f.IsProcedure {
		kind = "PROCEDURE"
	}
	return sqlbuild.New().
		Phrase("DROP").Phrase(kind).
		Phrase(sqlbuild.QualifiedName(f.Schema, f.Name) + "(" + f.ArgTypes() + ")").
		Phrase("CASCADE").
		Terminate()
}

func createFunctionSQL(f *ir.Function) string {
	kind := "FUNCTION"
	if f.IsProcedure {
		kind = "PROCEDURE"
	}

	var params []string
	for _, p := range f.Params {
		var parts []string
		if p.Mode != "" && p.Mode != "IN" {
			parts = append(parts, p.Mode)
		}
		if p.Name != "" {
			parts = append(parts, p.Name)
		}
		parts = append(parts, p.Type)
		if p.Default != "" {
			parts = append(parts, "DEFAULT", p.Default)
		}
		params = append(params, strings.Join(parts, " "))
	}

	b := sqlbuild.New().
		Phrase("CREATE").Phrase(kind).
		Phrase(sqlbuild.QualifiedName(f.Schema, f.Name) + "(" + strings.Join(params, ", ") + ")")
	if !f.IsProcedure {
		b.Newline().Phrase("RETURNS").Phrase(f.Returns)
	}
	b.Newline().Phrase("LANGUAGE").Phrase(f.Language)
	if f.Volatility != "" && f.Volatility != "VOLATILE" {
		b.Newline().Phrase(f.Volatility)
	}
	if f.Strict {
		b.Newline().Phrase("STRICT")
	}
	if f.SecurityDefiner {
		b.Newline().Phrase("SECURITY DEFINER")
	}
	if f.Parallel != "" && f.Parallel != "UNSAFE" {
		b.Newline().Phrase("PARALLEL " + f.Parallel)
	}
	if f.Cost != 0 {
		b.Newline().Phrase("COST " + strconv.FormatFloat(f.Cost, 'f', -1, 64))
	}
	b.Newline().Phrase("AS $function$" + f.Body + "$function$")
	return b.Terminate()
}
