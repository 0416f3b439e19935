package diff

import (
	"github.com/lib/pq"

	"github.com/pgdelta/pgdelta/internal/ir"
	"github.com/pgdelta/pgdelta/internal/logger"
	"github.com/pgdelta/pgdelta/internal/sqlbuild"
)

// createSchemas emits CREATE SCHEMA for missing schemas. Schemas are
// never dropped: the inspector always reports the target schema, and
// dropping one would cascade over everything in it.
func (d *differ) createSchemas() {
	have := make(map[string]bool, len(d.current.Schemas))
	for _, s := range d.current.Schemas {
		have[s.Name] = true
	}
	for _, s := range d.desired.Schemas {
		if have[s.Name] {
			continue
		}
		d.plan.Add(sqlbuild.New().
			Phrase("CREATE SCHEMA IF NOT EXISTS").Ident(s.Name).
			Terminate())
	}
}

func (d *differ) extensionHandler() handler[*ir.Extension] {
	return handler[*ir.Extension]{
		key: func(e *ir.Extension) string { return e.Name },
		equal: func(a, b *ir.Extension) bool {
			// a version pin that disagrees with the installed version is
			// worth a warning, never a drop: dropping an extension
			// cascades over its dependents
			if a.Version != "" && b.Version != "" && a.Version != b.Version {
				logger.Get().Warn("extension version differs from desired; not changed",
					"extension", a.Name, "installed", b.Version, "desired", a.Version)
			}
			return true
		},
		create: func(e *ir.Extension) error {
			b := sqlbuild.New().Phrase("CREATE EXTENSION IF NOT EXISTS").Ident(e.Name)
			if e.Schema != "" {
				b.Phrase("WITH SCHEMA").Ident(e.Schema)
			}
			d.plan.Add(b.Terminate())
			return nil
		},
		drop: func(e *ir.Extension) error {
			d.plan.Add(sqlbuild.New().
				Phrase("DROP EXTENSION").Ident(e.Name).
				Terminate())
			return nil
		},
		update: func(desired, current *ir.Extension) error { return nil },
	}
}

func (d *differ) createExtensions() {
	_ = d.extensionHandler().applyCreatesAndUpdates(d.desired.Extensions, d.current.Extensions)
}

func (d *differ) dropExtensions() {
	_ = d.extensionHandler().applyDrops(d.desired.Extensions, d.current.Extensions)
}

func (d *differ) commentHandler() handler[*ir.Comment] {
	return handler[*ir.Comment]{
		key:   func(c *ir.Comment) string { return c.Key() },
		equal: func(a, b *ir.Comment) bool { return a.Text == b.Text },
		create: func(c *ir.Comment) error {
			d.plan.Add(commentSQL(c, pq.QuoteLiteral(c.Text)))
			return nil
		},
		drop: func(c *ir.Comment) error {
			d.plan.Add(commentSQL(c, "NULL"))
			return nil
		},
		update: func(desired, current *ir.Comment) error {
			d.plan.Add(commentSQL(desired, pq.QuoteLiteral(desired.Text)))
			return nil
		},
	}
}

func (d *differ) diffComments() {
	h := d.commentHandler()
	_ = h.applyDrops(d.desired.Comments, d.current.Comments)
	_ = h.applyCreatesAndUpdates(d.desired.Comments, d.current.Comments)
}

func commentSQL(c *ir.Comment, value string) string {
	b := sqlbuild.New().Phrase("COMMENT ON").Phrase(string(c.Target))
	if c.Target == ir.CommentOnColumn {
		b.Phrase(sqlbuild.QualifiedName(c.Schema, c.Object) + "." + sqlbuild.QuoteIdent(c.Column))
	} else {
		b.Table(c.Schema, c.Object)
	}
	return b.Phrase("IS").Phrase(value).Terminate()
}
