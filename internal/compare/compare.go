// Package compare decides semantic equality of SQL scalar expressions.
// PostgreSQL rewrites expressions it stores (added casts, IN lists
// turned into = ANY(ARRAY[...]), LIKE into ~~, now() into
// CURRENT_TIMESTAMP), so a textual comparison between user DDL and
// catalog output churns forever. Both sides are parsed as the WHERE
// clause of a dummy SELECT, canonicalized, and compared through their
// deparsed form, which discards source locations and formatting.
package compare

import (
	"regexp"
	"strconv"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

var wsRe = regexp.MustCompile(`\s+`)

// Equal reports whether two scalar expressions are semantically equal.
// It is reflexive and symmetric, never panics, and falls back to
// whitespace-normalized textual equality when either side fails to
// parse.
func Equal(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == b {
		return true
	}
	ca, okA := Canonical(a)
	cb, okB := Canonical(b)
	if okA && okB {
		return ca == cb
	}
	return textFallback(a) == textFallback(b)
}

func textFallback(expr string) string {
	return wsRe.ReplaceAllString(strings.TrimSpace(expr), " ")
}

// EqualStatements reports whether two complete SQL statements are
// equal once parsed and deparsed. Used for view definitions, where the
// catalogs return a reformatted SELECT.
func EqualStatements(a, b string) bool {
	a, b = strings.TrimSuffix(strings.TrimSpace(a), ";"), strings.TrimSuffix(strings.TrimSpace(b), ";")
	if a == b {
		return true
	}
	da, okA := reprint(a)
	db, okB := reprint(b)
	if okA && okB {
		return da == db
	}
	return textFallback(a) == textFallback(b)
}

func reprint(sql string) (string, bool) {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return "", false
	}
	out, err := pg_query.Deparse(result)
	if err != nil {
		return "", false
	}
	return out, true
}

// Canonical returns the canonical deparsed form of an expression and
// whether canonicalization succeeded.
func Canonical(expr string) (string, bool) {
	if strings.TrimSpace(expr) == "" {
		return "", true
	}
	result, err := pg_query.Parse("SELECT 1 WHERE " + expr)
	if err != nil || len(result.Stmts) != 1 {
		return "", false
	}
	sel := result.Stmts[0].Stmt.GetSelectStmt()
	if sel == nil || sel.WhereClause == nil {
		return "", false
	}
	sel.WhereClause = canonNode(sel.WhereClause)
	out, err := pg_query.Deparse(result)
	if err != nil {
		return "", false
	}
	return out, true
}

// canonNode applies the canonicalization rewrites bottom-up.
func canonNode(n *pg_query.Node) *pg_query.Node {
	if n == nil {
		return nil
	}
	switch v := n.Node.(type) {
	case *pg_query.Node_TypeCast:
		return canonTypeCast(v.TypeCast)
	case *pg_query.Node_AExpr:
		return canonAExpr(v.AExpr)
	case *pg_query.Node_BoolExpr:
		for i, arg := range v.BoolExpr.Args {
			v.BoolExpr.Args[i] = canonNode(arg)
		}
		return n
	case *pg_query.Node_FuncCall:
		return canonFuncCall(v.FuncCall)
	case *pg_query.Node_List:
		for i, item := range v.List.Items {
			v.List.Items[i] = canonNode(item)
		}
		return n
	case *pg_query.Node_AArrayExpr:
		for i, el := range v.AArrayExpr.Elements {
			v.AArrayExpr.Elements[i] = canonNode(el)
		}
		return n
	case *pg_query.Node_NullTest:
		v.NullTest.Arg = canonNode(v.NullTest.Arg)
		return n
	case *pg_query.Node_CoalesceExpr:
		for i, arg := range v.CoalesceExpr.Args {
			v.CoalesceExpr.Args[i] = canonNode(arg)
		}
		return n
	case *pg_query.Node_CaseExpr:
		v.CaseExpr.Arg = canonNode(v.CaseExpr.Arg)
		v.CaseExpr.Defresult = canonNode(v.CaseExpr.Defresult)
		for i, w := range v.CaseExpr.Args {
			v.CaseExpr.Args[i] = canonNode(w)
		}
		return n
	case *pg_query.Node_CaseWhen:
		v.CaseWhen.Expr = canonNode(v.CaseWhen.Expr)
		v.CaseWhen.Result = canonNode(v.CaseWhen.Result)
		return n
	default:
		return n
	}
}

// canonTypeCast unwraps the cast. A cast around a numeric-shaped string
// literal is promoted to a numeric literal so '18'::int equals 18.
var numericLiteralRe = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

func canonTypeCast(tc *pg_query.TypeCast) *pg_query.Node {
	arg := canonNode(tc.Arg)
	if c := arg.GetAConst(); c != nil {
		if sval := c.GetSval(); sval != nil && numericLiteralRe.MatchString(sval.Sval) {
			return makeNumericConst(sval.Sval)
		}
	}
	return arg
}

func makeNumericConst(text string) *pg_query.Node {
	if i, err := strconv.ParseInt(text, 10, 32); err == nil {
		return &pg_query.Node{Node: &pg_query.Node_AConst{AConst: &pg_query.A_Const{
			Val: &pg_query.A_Const_Ival{Ival: &pg_query.Integer{Ival: int32(i)}},
		}}}
	}
	return &pg_query.Node{Node: &pg_query.Node_AConst{AConst: &pg_query.A_Const{
		Val: &pg_query.A_Const_Fval{Fval: &pg_query.Float{Fval: text}},
	}}}
}

func makeStringNode(s string) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_String_{String_: &pg_query.String{Sval: s}}}
}

func makeOpExpr(op string, lexpr, rexpr *pg_query.Node) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_AExpr{AExpr: &pg_query.A_Expr{
		Kind:  pg_query.A_Expr_Kind_AEXPR_OP,
		Name:  []*pg_query.Node{makeStringNode(op)},
		Lexpr: lexpr,
		Rexpr: rexpr,
	}}}
}

func canonAExpr(e *pg_query.A_Expr) *pg_query.Node {
	e.Lexpr = canonNode(e.Lexpr)
	e.Rexpr = canonNode(e.Rexpr)

	switch e.Kind {
	case pg_query.A_Expr_Kind_AEXPR_BETWEEN:
		// x BETWEEN lo AND hi  ==>  x >= lo AND x <= hi
		if list := e.Rexpr.GetList(); list != nil && len(list.Items) == 2 {
			return &pg_query.Node{Node: &pg_query.Node_BoolExpr{BoolExpr: &pg_query.BoolExpr{
				Boolop: pg_query.BoolExprType_AND_EXPR,
				Args: []*pg_query.Node{
					makeOpExpr(">=", e.Lexpr, list.Items[0]),
					makeOpExpr("<=", e.Lexpr, list.Items[1]),
				},
			}}}
		}

	case pg_query.A_Expr_Kind_AEXPR_OP_ANY:
		// x = ANY(ARRAY[v1, v2])  ==>  x IN (v1, v2)
		if opName(e) == "=" {
			if arr := e.Rexpr.GetAArrayExpr(); arr != nil {
				e.Kind = pg_query.A_Expr_Kind_AEXPR_IN
				e.Rexpr = &pg_query.Node{Node: &pg_query.Node_List{List: &pg_query.List{
					Items: arr.Elements,
				}}}
			}
		}

	case pg_query.A_Expr_Kind_AEXPR_LIKE, pg_query.A_Expr_Kind_AEXPR_ILIKE:
		// LIKE / ILIKE become plain operator expressions on ~~ / ~~*,
		// the form the server reports.
		e.Kind = pg_query.A_Expr_Kind_AEXPR_OP
	}

	return &pg_query.Node{Node: &pg_query.Node_AExpr{AExpr: e}}
}

func opName(e *pg_query.A_Expr) string {
	if len(e.Name) == 1 {
		if s := e.Name[0].GetString_(); s != nil {
			return s.Sval
		}
	}
	return ""
}

var sqlValueFuncs = map[string]pg_query.SQLValueFunctionOp{
	"now":               pg_query.SQLValueFunctionOp_SVFOP_CURRENT_TIMESTAMP,
	"current_timestamp": pg_query.SQLValueFunctionOp_SVFOP_CURRENT_TIMESTAMP,
}

func canonFuncCall(fc *pg_query.FuncCall) *pg_query.Node {
	for i, arg := range fc.Args {
		fc.Args[i] = canonNode(arg)
	}

	// strip the pg_catalog qualifier from function names
	if len(fc.Funcname) > 1 {
		if first := fc.Funcname[0].GetString_(); first != nil && first.Sval == "pg_catalog" {
			fc.Funcname = fc.Funcname[1:]
		}
	}

	name := ""
	if len(fc.Funcname) == 1 {
		if s := fc.Funcname[0].GetString_(); s != nil {
			name = strings.ToLower(s.Sval)
		}
	}

	// now() and CURRENT_TIMESTAMP are the same value function
	if op, ok := sqlValueFuncs[name]; ok && len(fc.Args) == 0 {
		return &pg_query.Node{Node: &pg_query.Node_SqlvalueFunction{SqlvalueFunction: &pg_query.SQLValueFunction{
			Op:     op,
			Typmod: -1,
		}}}
	}

	// EXTRACT(field FROM x): the field token may arrive quoted or in
	// either case; canonicalize to lower case.
	if (name == "extract" || name == "date_part") && len(fc.Args) >= 1 {
		if c := fc.Args[0].GetAConst(); c != nil {
			if sval := c.GetSval(); sval != nil {
				sval.Sval = strings.ToLower(sval.Sval)
			}
		}
	}

	return &pg_query.Node{Node: &pg_query.Node_FuncCall{FuncCall: fc}}
}
