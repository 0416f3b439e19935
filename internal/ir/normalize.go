package ir

import (
	"regexp"
	"strings"
)

// canonicalTypes maps every server-reported or user-written spelling of
// a built-in type to its canonical token. Unknown types (enums, domains,
// composite types) pass through untouched.
var canonicalTypes = map[string]string{
	"character varying":           "VARCHAR",
	"varchar":                     "VARCHAR",
	"bpchar":                      "CHAR",
	"character":                   "CHAR",
	"char":                        "CHAR",
	"smallint":                    "INT2",
	"int2":                        "INT2",
	"integer":                     "INT4",
	"int":                         "INT4",
	"int4":                        "INT4",
	"bigint":                      "INT8",
	"int8":                        "INT8",
	"smallserial":                 "INT2",
	"serial2":                     "INT2",
	"serial":                      "INT4",
	"serial4":                     "INT4",
	"bigserial":                   "INT8",
	"serial8":                     "INT8",
	"numeric":                     "NUMERIC",
	"decimal":                     "NUMERIC",
	"real":                        "FLOAT4",
	"float4":                      "FLOAT4",
	"double precision":            "FLOAT8",
	"float8":                      "FLOAT8",
	"bool":                        "BOOLEAN",
	"boolean":                     "BOOLEAN",
	"timestamp":                   "TIMESTAMP",
	"timestamp without time zone": "TIMESTAMP",
	"timestamptz":                 "TIMESTAMPTZ",
	"timestamp with time zone":    "TIMESTAMPTZ",
	"time":                        "TIME",
	"time without time zone":      "TIME",
	"timetz":                      "TIMETZ",
	"time with time zone":         "TIMETZ",
	"bit varying":                 "BIT VARYING",
	"varbit":                      "BIT VARYING",
	"text":                        "TEXT",
}

var (
	typeModRe      = regexp.MustCompile(`^(.*?)\s*\(([^)]*)\)$`)
	arraySuffixRe  = regexp.MustCompile(`(\[\d*\])+$`)
	numericShapeRe = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	wsRe           = regexp.MustCompile(`\s+`)
)

// NormalizeType maps a type spelling to its canonical comparison form:
// upper-case canonical token, modifiers preserved, NUMERIC(p) promoted
// to NUMERIC(p,0), any number of array brackets collapsed to one [].
// The function is idempotent.
func NormalizeType(typeName string) string {
	t := wsRe.ReplaceAllString(strings.TrimSpace(typeName), " ")
	t = strings.TrimPrefix(t, "pg_catalog.")

	isArray := false
	if m := arraySuffixRe.FindString(t); m != "" {
		isArray = true
		t = strings.TrimSuffix(t, m)
		t = strings.TrimSpace(t)
	}

	base, mods := t, ""
	if m := typeModRe.FindStringSubmatch(t); m != nil {
		base, mods = strings.TrimSpace(m[1]), strings.ReplaceAll(m[2], " ", "")
	}

	canonical, ok := canonicalTypes[strings.ToLower(base)]
	if !ok {
		canonical = base
	}

	// numeric with a bare precision means scale 0
	if canonical == "NUMERIC" && mods != "" && !strings.Contains(mods, ",") {
		mods += ",0"
	}
	// serial types carry no modifiers; they are storage-form integers
	switch strings.ToLower(base) {
	case "smallserial", "serial", "bigserial", "serial2", "serial4", "serial8":
		mods = ""
	}

	out := canonical
	if mods != "" {
		out += "(" + mods + ")"
	}
	if isArray {
		out += "[]"
	}
	return out
}

// IsSerialType reports whether the user-written type is one of the
// serial pseudo-types.
func IsSerialType(typeName string) bool {
	switch strings.ToLower(strings.TrimSpace(typeName)) {
	case "smallserial", "serial", "bigserial", "serial2", "serial4", "serial8":
		return true
	}
	return false
}

var (
	nextvalQualRe   = regexp.MustCompile(`nextval\('([^'.]+)\.([^']+)'(::regclass)?\)`)
	trailingCastRe  = regexp.MustCompile(`::\s*[a-zA-Z_][a-zA-Z0-9_ .]*(\([^()]*\))?(\[\])*$`)
	literalCastRe   = regexp.MustCompile(`'([^']*)'::[a-zA-Z_][a-zA-Z0-9_ .]*(\([^()]*\))?(\[\])?`)
	nowCallRe       = regexp.MustCompile(`(?i)\bnow\(\)`)
	extractFieldRe  = regexp.MustCompile(`(?i)\bextract\(\s*'?([a-zA-Z]+)'?\s+from\b`)
	castFuncRe      = regexp.MustCompile(`(?i)^cast\s*\(`)
	pgCatalogPrefRe = regexp.MustCompile(`\bpg_catalog\.`)
)

// NormalizeDefault canonicalizes a column default expression for
// comparison. An empty result means "no default" (covers literal NULL).
// The function is idempotent: NormalizeDefault(NormalizeDefault(x)) ==
// NormalizeDefault(x).
func NormalizeDefault(value string) string {
	v := strings.TrimSpace(value)
	if v == "" || strings.EqualFold(v, "null") {
		return ""
	}

	// nextval defaults keep their regclass cast; only the schema
	// qualifier inside the literal is dropped.
	if strings.Contains(strings.ToLower(v), "nextval(") {
		v = nextvalQualRe.ReplaceAllString(v, "nextval('$2'$3)")
		return wsRe.ReplaceAllString(v, " ")
	}

	for {
		prev := v
		v = unwrapCast(v)
		v = stripOuterParens(v)
		v = stripTrailingCast(v)
		if v == prev {
			break
		}
	}

	v = literalCastRe.ReplaceAllString(v, "'$1'")
	v = pgCatalogPrefRe.ReplaceAllString(v, "")
	v = nowCallRe.ReplaceAllString(v, "CURRENT_TIMESTAMP")
	v = extractFieldRe.ReplaceAllStringFunc(v, func(m string) string {
		sub := extractFieldRe.FindStringSubmatch(m)
		return "EXTRACT(" + strings.ToUpper(sub[1]) + " FROM"
	})

	// quoted numeric literals compare equal to bare ones: '0' vs 0
	if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
		inner := v[1 : len(v)-1]
		if numericShapeRe.MatchString(inner) {
			v = inner
		}
	}

	return wsRe.ReplaceAllString(strings.TrimSpace(v), " ")
}

// unwrapCast rewrites CAST(x AS type) to x when the CAST spans the whole
// expression.
func unwrapCast(v string) string {
	if !castFuncRe.MatchString(v) || !strings.HasSuffix(v, ")") {
		return v
	}
	open := strings.Index(v, "(")
	inner := v[open+1 : len(v)-1]
	if !balanced(inner) {
		return v
	}
	// split at the top-level " AS "
	depth, inQuote := 0, false
	upper := strings.ToUpper(inner)
	for i := 0; i+4 <= len(inner); i++ {
		switch inner[i] {
		case '\'':
			inQuote = !inQuote
		case '(':
			if !inQuote {
				depth++
			}
		case ')':
			if !inQuote {
				depth--
			}
		}
		if depth == 0 && !inQuote && strings.HasPrefix(upper[i:], " AS ") {
			return strings.TrimSpace(inner[:i])
		}
	}
	return v
}

// stripTrailingCast removes one trailing ::type[(mods)][[]...] cast that
// applies to the whole expression. Casts buried inside the expression
// are left for literalCastRe.
func stripTrailingCast(v string) string {
	loc := trailingCastRe.FindStringIndex(v)
	if loc == nil {
		return v
	}
	head := v[:loc[0]]
	if !balanced(head) {
		return v
	}
	return strings.TrimSpace(head)
}

// stripOuterParens removes redundant wrapping parentheses.
func stripOuterParens(v string) string {
	for strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") && balanced(v[1:len(v)-1]) {
		v = strings.TrimSpace(v[1 : len(v)-1])
	}
	return v
}

// balanced reports whether parentheses and single quotes are balanced.
func balanced(s string) bool {
	depth, inQuote := 0, false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			inQuote = !inQuote
		case '(':
			if !inQuote {
				depth++
			}
		case ')':
			if !inQuote {
				depth--
				if depth < 0 {
					return false
				}
			}
		}
	}
	return depth == 0 && !inQuote
}

// DefaultsEquivalent compares two default expressions after
// normalization.
func DefaultsEquivalent(a, b *string) bool {
	var av, bv string
	if a != nil {
		av = NormalizeDefault(*a)
	}
	if b != nil {
		bv = NormalizeDefault(*b)
	}
	return av == bv
}

// TypesEquivalent compares two type spellings after normalization.
func TypesEquivalent(a, b string) bool {
	return NormalizeType(a) == NormalizeType(b)
}
