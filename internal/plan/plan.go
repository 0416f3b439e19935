// Package plan holds the migration plan: the ordered SQL statements a
// run would execute, split into the three execution phases. A plan is
// pure data; building one never touches the database.
package plan

import (
	"encoding/json"
	"strings"
)

// Phase names the execution phase of a statement.
type Phase string

const (
	// PhaseTransactional statements run inside one wrapping transaction.
	PhaseTransactional Phase = "transactional"
	// PhaseConcurrent statements use CONCURRENTLY and run outside any
	// transaction, one at a time.
	PhaseConcurrent Phase = "concurrent"
	// PhaseDeferred statements close FK cycles after all tables exist
	// and run in their own transaction.
	PhaseDeferred Phase = "deferred"
)

// Plan is the differ's output.
type Plan struct {
	Transactional []string `json:"transactional"`
	Concurrent    []string `json:"concurrent"`
	Deferred      []string `json:"deferred"`
	HasChanges    bool     `json:"hasChanges"`
}

// New returns an empty plan.
func New() *Plan {
	return &Plan{}
}

// Add appends a statement, classifying it by phase: anything carrying
// CONCURRENTLY runs outside a transaction, everything else is
// transactional. Cycle-closing FKs go through AddDeferred instead.
func (p *Plan) Add(sql string) {
	if sql == "" {
		return
	}
	if strings.Contains(sql, "CONCURRENTLY") {
		p.Concurrent = append(p.Concurrent, sql)
	} else {
		p.Transactional = append(p.Transactional, sql)
	}
	p.HasChanges = true
}

// AddDeferred appends a statement to the deferred phase.
func (p *Plan) AddDeferred(sql string) {
	if sql == "" {
		return
	}
	p.Deferred = append(p.Deferred, sql)
	p.HasChanges = true
}

// Statements returns every statement in execution order.
func (p *Plan) Statements() []string {
	out := make([]string, 0, len(p.Transactional)+len(p.Concurrent)+len(p.Deferred))
	out = append(out, p.Transactional...)
	out = append(out, p.Concurrent...)
	out = append(out, p.Deferred...)
	return out
}

// MarshalJSON renders the plan with empty phases as [] rather than null.
func (p *Plan) MarshalJSON() ([]byte, error) {
	type alias Plan
	a := alias(*p)
	if a.Transactional == nil {
		a.Transactional = []string{}
	}
	if a.Concurrent == nil {
		a.Concurrent = []string{}
	}
	if a.Deferred == nil {
		a.Deferred = []string{}
	}
	return json.Marshal(a)
}

// Text renders the plan as a human-readable migration script with phase
// headings, for display and review.
func (p *Plan) Text() string {
	if !p.HasChanges {
		return "-- No changes detected.\n"
	}
	var sb strings.Builder
	writePhase := func(heading string, stmts []string) {
		if len(stmts) == 0 {
			return
		}
		sb.WriteString("-- ")
		sb.WriteString(heading)
		sb.WriteString("\n")
		for _, s := range stmts {
			sb.WriteString(s)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	writePhase("Transactional phase", p.Transactional)
	writePhase("Concurrent phase (executed outside a transaction)", p.Concurrent)
	writePhase("Deferred phase (closes foreign key cycles)", p.Deferred)
	return strings.TrimRight(sb.String(), "\n") + "\n"
}
