// Package diff computes the migration plan between a desired catalog
// (parsed DDL) and a current catalog (introspected). It is pure
// computation: no I/O, no shared state, safe to run from any
// goroutine.
package diff

import (
	"fmt"
	"strings"

	"github.com/pgdelta/pgdelta/internal/ir"
	"github.com/pgdelta/pgdelta/internal/plan"
)

// Options tune statement generation.
type Options struct {
	// NoConcurrentIndexes disables the CONCURRENTLY default for index
	// creation and removal on existing tables. An index whose desired
	// DDL spells out CONCURRENTLY is still built concurrently.
	NoConcurrentIndexes bool
}

// ManualInterventionError marks a desired change the engine refuses to
// generate because it would destroy data, such as removing an enum
// value.
type ManualInterventionError struct {
	Object  string
	Reason  string
	Current []string
	Desired []string
}

func (e *ManualInterventionError) Error() string {
	return fmt.Sprintf("manual intervention required for %s: %s (current: [%s], desired: [%s])",
		e.Object, e.Reason, strings.Join(e.Current, ", "), strings.Join(e.Desired, ", "))
}

type differ struct {
	plan    *plan.Plan
	desired *ir.Catalog
	current *ir.Catalog
	opts    Options

	// function names dropped with CASCADE this run; their dependent
	// triggers need re-creating
	replacedFuncs map[string]bool

	// table keys dropped this run; DROP TABLE CASCADE already removes
	// inbound foreign keys, so no explicit DROP CONSTRAINT may follow
	droppedTables map[string]bool
}

// Diff computes the plan that migrates current to desired.
func Diff(desired, current *ir.Catalog, opts Options) (*plan.Plan, error) {
	d := &differ{
		plan:          plan.New(),
		desired:       desired,
		current:       current,
		opts:          opts,
		replacedFuncs: make(map[string]bool),
		droppedTables: make(map[string]bool),
	}

	// creation prerequisites of tables come first, drops of dependents
	// come before the objects they depend on
	d.createSchemas()
	d.createExtensions()
	if err := d.upsertEnums(); err != nil {
		return nil, err
	}
	d.upsertSequences()
	d.upsertFunctions()

	d.dropViews()

	if err := d.diffTables(); err != nil {
		return nil, err
	}

	d.dropEnums()
	d.dropSequences()
	d.dropFunctions()
	d.dropExtensions()

	d.createAndUpdateViews()
	d.diffComments()

	return d.plan, nil
}
