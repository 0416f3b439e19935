// Package apply executes a migration plan against a database: the
// transactional phase inside one transaction, the concurrent phase
// statement by statement outside any transaction, and the deferred
// phase in its own transaction. It also owns the cluster-wide advisory
// lock that keeps two runs from interleaving.
package apply

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgdelta/pgdelta/internal/logger"
	"github.com/pgdelta/pgdelta/internal/plan"
)

// ExecError reports the statement and phase that failed.
type ExecError struct {
	Phase     plan.Phase
	Statement string
	Err       error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("failed to execute statement in %s phase: %v\nstatement: %s", e.Phase, e.Err, e.Statement)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Executor runs plans over a single write connection pool.
type Executor struct {
	db *sql.DB
}

// NewExecutor creates an executor.
func NewExecutor(db *sql.DB) *Executor {
	return &Executor{db: db}
}

// Execute runs the plan's phases in order. The transactional and
// deferred phases roll back as a unit on failure; a concurrent-phase
// failure aborts the remainder but leaves earlier concurrent
// statements in place, which the error reports.
func (e *Executor) Execute(ctx context.Context, p *plan.Plan) error {
	if !p.HasChanges {
		return nil
	}
	log := logger.Get()

	if err := e.runTx(ctx, plan.PhaseTransactional, p.Transactional); err != nil {
		return err
	}

	for _, stmt := range p.Concurrent {
		log.Debug("executing outside transaction", "statement", stmt)
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return &ExecError{Phase: plan.PhaseConcurrent, Statement: stmt, Err: err}
		}
	}

	return e.runTx(ctx, plan.PhaseDeferred, p.Deferred)
}

func (e *Executor) runTx(ctx context.Context, phase plan.Phase, stmts []string) error {
	if len(stmts) == 0 {
		return nil
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin %s transaction: %w", phase, err)
	}
	log := logger.Get()
	for _, stmt := range stmts {
		log.Debug("executing", "phase", phase, "statement", stmt)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			// rollback error is secondary; the exec error names the cause
			_ = tx.Rollback()
			return &ExecError{Phase: phase, Statement: stmt, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s transaction: %w", phase, err)
	}
	return nil
}
