package sqlbuild

import "strings"

// QuoteIdent double-quotes an identifier, doubling any embedded quotes.
// Identifiers are always emitted quoted so that comparison stays
// case-sensitive end to end.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteIdentList quotes each identifier and joins them with ", ".
func QuoteIdentList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// QualifiedName returns "schema"."name", or just "name" when schema is
// empty.
func QualifiedName(schema, name string) string {
	if schema == "" {
		return QuoteIdent(name)
	}
	return QuoteIdent(schema) + "." + QuoteIdent(name)
}

// Unquote strips one layer of double quotes from an identifier and
// collapses doubled quotes. Unquoted input is returned unchanged.
func Unquote(ident string) string {
	if len(ident) >= 2 && ident[0] == '"' && ident[len(ident)-1] == '"' {
		return strings.ReplaceAll(ident[1:len(ident)-1], `""`, `"`)
	}
	return ident
}
