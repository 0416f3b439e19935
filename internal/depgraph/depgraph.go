// Package depgraph orders tables by their foreign key dependencies.
// Creation order puts referenced tables before referencing tables;
// deletion order is the reverse. Cyclic foreign keys can be detached:
// the detached set is emitted in a deferred phase once every table
// exists (creation) or dropped up front (deletion).
package depgraph

import (
	"fmt"
	"strings"

	"github.com/pgdelta/pgdelta/internal/ir"
)

// CycleError reports the foreign key cycles that prevent a strict
// topological order.
type CycleError struct {
	Cycles [][]string // each cycle as a list of table keys
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Cycles))
	for i, c := range e.Cycles {
		parts[i] = strings.Join(c, " -> ")
	}
	return fmt.Sprintf("foreign key cycle(s) detected: %s", strings.Join(parts, "; "))
}

// DeferredFK is a foreign key removed from the dependency graph to
// break a cycle. The caller emits it in the deferred phase.
type DeferredFK struct {
	Table *ir.Table
	FK    *ir.ForeignKey
}

// Detached is the result of ordering with cycle detachment.
type Detached struct {
	Order       []*ir.Table
	DeferredFKs []DeferredFK
}

// Graph is a table dependency graph. Self-referential foreign keys and
// references to tables outside the input set are ignored.
type Graph struct {
	tables []*ir.Table
	index  map[string]int // table key -> position in input
}

// New builds a graph over the given tables.
func New(tables []*ir.Table) *Graph {
	g := &Graph{tables: tables, index: make(map[string]int, len(tables))}
	for i, t := range tables {
		g.index[t.Key()] = i
	}
	return g
}

// deps returns, for each table position, the positions of the tables it
// references (excluding self references and out-of-set targets). When
// skip is non-nil, edges in skip are left out.
func (g *Graph) deps(skip map[*ir.ForeignKey]bool) [][]int {
	out := make([][]int, len(g.tables))
	for i, t := range g.tables {
		for _, fk := range t.ForeignKeys {
			if skip[fk] {
				continue
			}
			j, ok := g.index[fk.RefKey()]
			if !ok || j == i {
				continue
			}
			out[i] = append(out[i], j)
		}
	}
	return out
}

// CreationOrder returns the tables ordered so every foreign key target
// precedes its source. A *CycleError is returned when cycles exist.
func (g *Graph) CreationOrder() ([]*ir.Table, error) {
	if cycles := g.findCycles(); len(cycles) > 0 {
		return nil, &CycleError{Cycles: cycles}
	}
	order, ok := g.kahn(nil)
	if !ok {
		// findCycles returned empty yet Kahn failed
		panic("depgraph: topological sort failed on an acyclic graph")
	}
	return order, nil
}

// DeletionOrder returns the tables ordered dependents-first, so each
// table is dropped before anything it references.
func (g *Graph) DeletionOrder() ([]*ir.Table, error) {
	order, err := g.CreationOrder()
	if err != nil {
		return nil, err
	}
	return reversed(order), nil
}

// CreationOrderWithDetachment never fails: foreign keys participating
// in cycles are removed from the graph and returned for deferred
// emission, and the residual DAG is ordered.
func (g *Graph) CreationOrderWithDetachment() Detached {
	deferred := g.detachableFKs()
	skip := make(map[*ir.ForeignKey]bool, len(deferred))
	for _, d := range deferred {
		skip[d.FK] = true
	}
	order, ok := g.kahn(skip)
	if !ok {
		// the detached set must leave the graph acyclic
		panic("depgraph: cycle remains after foreign key detachment")
	}
	return Detached{Order: order, DeferredFKs: deferred}
}

// DeletionOrderWithDetachment is the deletion-side counterpart: drop the
// deferred foreign keys first, then drop tables in the returned order.
func (g *Graph) DeletionOrderWithDetachment() Detached {
	d := g.CreationOrderWithDetachment()
	return Detached{Order: reversed(d.Order), DeferredFKs: d.DeferredFKs}
}

// detachableFKs returns every non-self foreign key whose endpoints both
// lie on some cycle. Removing all of them is guaranteed to make the
// graph acyclic because any remaining cycle would consist entirely of
// cycle-participant nodes.
func (g *Graph) detachableFKs() []DeferredFK {
	cycles := g.findCycles()
	if len(cycles) == 0 {
		return nil
	}
	inCycle := make(map[string]bool)
	for _, c := range cycles {
		for _, key := range c {
			inCycle[key] = true
		}
	}
	var out []DeferredFK
	for _, t := range g.tables {
		if !inCycle[t.Key()] {
			continue
		}
		for _, fk := range t.ForeignKeys {
			if fk.RefKey() == t.Key() {
				continue // self references never detach
			}
			if _, ok := g.index[fk.RefKey()]; !ok {
				continue
			}
			if inCycle[fk.RefKey()] {
				out = append(out, DeferredFK{Table: t, FK: fk})
			}
		}
	}
	return out
}

// findCycles runs a DFS with an explicit recursion stack and reports
// each cycle it closes.
func (g *Graph) findCycles() [][]string {
	deps := g.deps(nil)
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, len(g.tables))
	var stack []int
	var cycles [][]string

	var visit func(int)
	visit = func(i int) {
		color[i] = gray
		stack = append(stack, i)
		for _, j := range deps[i] {
			switch color[j] {
			case white:
				visit(j)
			case gray:
				// close the cycle from j's position on the stack
				var cycle []string
				for k := len(stack) - 1; k >= 0; k-- {
					cycle = append([]string{g.tables[stack[k]].Key()}, cycle...)
					if stack[k] == j {
						break
					}
				}
				cycles = append(cycles, cycle)
			}
		}
		stack = stack[:len(stack)-1]
		color[i] = black
	}

	for i := range g.tables {
		if color[i] == white {
			visit(i)
		}
	}
	return cycles
}

// kahn runs Kahn's algorithm, breaking ties by input order. Returns
// false when the (possibly reduced) graph still contains a cycle.
func (g *Graph) kahn(skip map[*ir.ForeignKey]bool) ([]*ir.Table, bool) {
	deps := g.deps(skip)
	// dependents[j] lists tables that reference j
	dependents := make([][]int, len(g.tables))
	indegree := make([]int, len(g.tables))
	for i, ds := range deps {
		indegree[i] = len(ds)
		for _, j := range ds {
			dependents[j] = append(dependents[j], i)
		}
	}

	order := make([]*ir.Table, 0, len(g.tables))
	done := make([]bool, len(g.tables))
	for len(order) < len(g.tables) {
		picked := -1
		for i := range g.tables {
			if !done[i] && indegree[i] == 0 {
				picked = i
				break
			}
		}
		if picked < 0 {
			return nil, false
		}
		done[picked] = true
		order = append(order, g.tables[picked])
		for _, i := range dependents[picked] {
			indegree[i]--
		}
	}
	return order, true
}

func reversed(in []*ir.Table) []*ir.Table {
	out := make([]*ir.Table, len(in))
	for i, t := range in {
		out[len(in)-1-i] = t
	}
	return out
}
