package diff

import (
	"strings"

	"github.com/pgdelta/pgdelta/internal/ir"
)

// Auto-generated constraint names, used whenever the desired DDL left a
// constraint unnamed. Explicit names always win.

func pkName(t *ir.Table, pk *ir.PrimaryKey) string {
	if pk.Name != "" {
		return pk.Name
	}
	return t.Name + "_pkey"
}

func uniqueName(t *ir.Table, u *ir.UniqueConstraint) string {
	if u.Name != "" {
		return u.Name
	}
	return t.Name + "_" + strings.Join(u.Columns, "_") + "_unique"
}

func checkName(t *ir.Table, c *ir.CheckConstraint) string {
	if c.Name != "" {
		return c.Name
	}
	return t.Name + "_check"
}

func fkName(t *ir.Table, fk *ir.ForeignKey) string {
	if fk.Name != "" {
		return fk.Name
	}
	return "fk_" + t.Name + "_" + fk.RefTable
}
