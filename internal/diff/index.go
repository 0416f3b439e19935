package diff

import (
	"sort"
	"strings"

	"github.com/pgdelta/pgdelta/internal/compare"
	"github.com/pgdelta/pgdelta/internal/ir"
	"github.com/pgdelta/pgdelta/internal/sqlbuild"
)

// diffIndexes reconciles the standalone indexes of one table, matched
// by name. Constraint-backed indexes belong to the constraint diff and
// are excluded on both sides.
func (d *differ) diffIndexes(desired, current *ir.Table) {
	currentByName := make(map[string]*ir.Index)
	for _, ix := range current.Indexes {
		if !ix.IsConstraintBacked() {
			currentByName[ix.Name] = ix
		}
	}

	desiredNames := make(map[string]bool)
	for _, dix := range desired.Indexes {
		if dix.IsConstraintBacked() {
			continue
		}
		desiredNames[dix.Name] = true
		cix := currentByName[dix.Name]
		switch {
		case cix == nil:
			// an explicit CONCURRENTLY in the desired DDL overrides the
			// global opt-out for that index
			d.plan.Add(createIndexSQL(dix, !d.opts.NoConcurrentIndexes || dix.Concurrent))
		case !indexesEqual(dix, cix):
			// replace atomically inside the transaction; a concurrent
			// rebuild would leave a window with neither index
			d.plan.Add(dropIndexSQL(cix, false))
			d.plan.Add(createIndexSQL(dix, false))
		}
	}

	for _, cix := range current.Indexes {
		if cix.IsConstraintBacked() || desiredNames[cix.Name] {
			continue
		}
		d.plan.Add(dropIndexSQL(cix, !d.opts.NoConcurrentIndexes))
	}
}

func indexesEqual(a, b *ir.Index) bool {
	return strings.EqualFold(a.Method, b.Method) &&
		a.Unique == b.Unique &&
		columnsEqual(a.Columns, b.Columns) &&
		mapsEqual(a.SortOrders, b.SortOrders) &&
		mapsEqual(a.Opclasses, b.Opclasses) &&
		compare.Equal(a.Where, b.Where) &&
		compare.Equal(a.Expression, b.Expression) &&
		mapsEqual(a.StorageParams, b.StorageParams) &&
		a.Tablespace == b.Tablespace
}

func mapsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func createIndexSQL(ix *ir.Index, concurrent bool) string {
	b := sqlbuild.New().Phrase("CREATE")
	if ix.Unique {
		b.Phrase("UNIQUE")
	}
	b.Phrase("INDEX")
	if concurrent {
		b.Phrase("CONCURRENTLY")
	}
	b.Ident(ix.Name).Phrase("ON").Table(ix.Schema, ix.Table)
	if !strings.EqualFold(ix.Method, "btree") && ix.Method != "" {
		b.Phrase("USING").Phrase(ix.Method)
	}

	if ix.Expression != "" {
		b.Phrase("(" + ix.Expression + ")")
	} else {
		keys := make([]string, len(ix.Columns))
		for i, col := range ix.Columns {
			key := sqlbuild.QuoteIdent(col)
			if opc := ix.Opclasses[col]; opc != "" {
				key += " " + opc
			}
			if ix.SortOrders[col] == "DESC" {
				key += " DESC"
			}
			keys[i] = key
		}
		b.Phrase("(" + strings.Join(keys, ", ") + ")")
	}

	if len(ix.StorageParams) > 0 {
		params := make([]string, 0, len(ix.StorageParams))
		for k, v := range ix.StorageParams {
			params = append(params, k+" = "+v)
		}
		sort.Strings(params)
		b.Phrase("WITH (" + strings.Join(params, ", ") + ")")
	}
	if ix.Tablespace != "" {
		b.Phrase("TABLESPACE").Ident(ix.Tablespace)
	}
	// the predicate is last in the index grammar
	if ix.Where != "" {
		b.Phrase("WHERE").Phrase(ix.Where)
	}
	return b.Terminate()
}

func dropIndexSQL(ix *ir.Index, concurrent bool) string {
	b := sqlbuild.New().Phrase("DROP INDEX")
	if concurrent {
		b.Phrase("CONCURRENTLY")
	}
	return b.Table(ix.Schema, ix.Name).Terminate()
}
