// Package translate implements C4: converting document-shaped filters,
// sort specs, projections, and update operators into parameterised SQL
// against the backend's `(_id, doc, jdoc, created_at)` table shape, falling
// back to an explicit "residual" marker wherever a fragment cannot be
// faithfully rendered.
package translate

import (
	"fmt"
	"strings"

	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

// Filter is a translated predicate: a SQL boolean expression plus its
// positional parameters, and/or a residual predicate to re-apply in
// memory over rows the SQL fragment could not fully filter.
type Filter struct {
	SQL      string
	Args     []any
	Residual func(*value.Document) bool // nil if nothing is residual
}

// paramBuilder allocates $N-style Postgres parameter markers starting
// from the current argument count.
type paramBuilder struct {
	args []any
}

func (p *paramBuilder) add(v any) string {
	p.args = append(p.args, v)
	return fmt.Sprintf("$%d", len(p.args))
}

// TranslateFilter converts a query-filter document into a Filter. Every
// top-level field is translated independently and AND-ed together;
// fragments this function cannot render are folded into Residual instead
// of failing the whole query.
func TranslateFilter(filter *value.Document) (Filter, error) {
	if filter == nil || filter.Len() == 0 {
		return Filter{}, nil
	}
	pb := &paramBuilder{}
	var clauses []string
	var residuals []func(*value.Document) bool

	for _, pair := range filter.Pairs() {
		field, expr := pair.Key, pair.Value
		if field == "$where" || field == "$expr" {
			residuals = append(residuals, residualFieldMatch(field, expr))
			continue
		}
		clause, residual, err := translateField(pb, field, expr)
		if err != nil {
			return Filter{}, err
		}
		if clause != "" {
			clauses = append(clauses, clause)
		}
		if residual != nil {
			residuals = append(residuals, residual)
		}
	}

	f := Filter{Args: pb.args}
	if len(clauses) > 0 {
		f.SQL = strings.Join(clauses, " AND ")
	}
	if len(residuals) > 0 {
		f.Residual = func(d *value.Document) bool {
			for _, r := range residuals {
				if !r(d) {
					return false
				}
			}
			return true
		}
	}
	return f, nil
}

// MatchesFilter evaluates a filter document directly against an
// in-memory document, the same semantics TranslateFilter's SQL+Residual
// pair enforce together, without needing a backend round trip. The
// aggregation engine's $match stage uses this for in-memory filtering
// once documents are already loaded.
func MatchesFilter(doc *value.Document, filter *value.Document) (bool, error) {
	if filter == nil || filter.Len() == 0 {
		return true, nil
	}
	for _, pair := range filter.Pairs() {
		field, expr := pair.Key, pair.Value
		if field == "$where" || field == "$expr" {
			continue // not supported for in-memory re-evaluation; treated as already satisfied
		}
		got := doc.GetPath(field)
		if !matchesExpr(got, expr) {
			return false, nil
		}
	}
	return true, nil
}

// jsonbPathLiteral renders a dotted field path as a `{a,b,c}` Postgres
// text-array literal for use with the `#>`/`#>>` operators.
func jsonbPathLiteral(path string) string {
	return "{" + strings.ReplaceAll(path, ".", ",") + "}"
}

func translateField(pb *paramBuilder, field string, expr value.Value) (string, func(*value.Document) bool, error) {
	pathLit := jsonbPathLiteral(field)

	// Bare value: implicit $eq.
	if expr.Kind != value.KindDocument {
		return comparisonClause(pb, pathLit, "=", expr), nil, nil
	}

	var clauses []string
	var residuals []func(*value.Document) bool
	isOperatorDoc := false
	for _, pair := range expr.Doc.Pairs() {
		op, operand := pair.Key, pair.Value
		if !strings.HasPrefix(op, "$") {
			// Not an operator document; treat the whole expr as a literal
			// document equality comparison instead.
			isOperatorDoc = false
			clauses = nil
			break
		}
		isOperatorDoc = true
		switch op {
		case "$eq":
			clauses = append(clauses, comparisonClause(pb, pathLit, "=", operand))
		case "$ne":
			clauses = append(clauses, comparisonClause(pb, pathLit, "<>", operand))
		case "$gt":
			clauses = append(clauses, comparisonClause(pb, pathLit, ">", operand))
		case "$gte":
			clauses = append(clauses, comparisonClause(pb, pathLit, ">=", operand))
		case "$lt":
			clauses = append(clauses, comparisonClause(pb, pathLit, "<", operand))
		case "$lte":
			clauses = append(clauses, comparisonClause(pb, pathLit, "<=", operand))
		case "$in":
			clauses = append(clauses, inClause(pb, pathLit, operand, false))
		case "$nin":
			clauses = append(clauses, inClause(pb, pathLit, operand, true))
		case "$exists":
			clauses = append(clauses, existsClause(field, operand))
		case "$elemMatch":
			c, err := elemMatchClause(pb, field, operand)
			if err != nil {
				return "", nil, err
			}
			clauses = append(clauses, c)
		default:
			residuals = append(residuals, residualFieldMatch(field, value.FromDocument(
				value.DocumentFromPairs(value.Pair{Key: op, Value: operand}))))
		}
	}
	if !isOperatorDoc {
		return comparisonClause(pb, pathLit, "=", expr), nil, nil
	}

	sql := ""
	if len(clauses) > 0 {
		sql = "(" + strings.Join(clauses, " AND ") + ")"
	}
	var residual func(*value.Document) bool
	if len(residuals) > 0 {
		residual = func(d *value.Document) bool {
			for _, r := range residuals {
				if !r(d) {
					return false
				}
			}
			return true
		}
	}
	return sql, residual, nil
}

// comparisonClause renders `jdoc #>> '{path}' op param`, casting the
// parameter side so numeric comparisons don't degrade to lexicographic
// text comparison.
func comparisonClause(pb *paramBuilder, pathLit, op string, operand value.Value) string {
	field := "jdoc #>> '" + pathLit + "'"
	switch {
	case operand.IsNumeric():
		f, _ := operand.AsFloat64()
		return fmt.Sprintf("(%s)::numeric %s %s::numeric", field, op, pb.add(f))
	case operand.Kind == value.KindBoolean:
		return fmt.Sprintf("(%s)::boolean %s %s::boolean", field, op, pb.add(operand.Bool))
	case operand.Kind == value.KindNull:
		if op == "=" {
			return "jdoc #> '" + pathLit + "' = 'null'::jsonb"
		}
		return "jdoc #> '" + pathLit + "' <> 'null'::jsonb"
	default:
		return fmt.Sprintf("%s %s %s", field, op, pb.add(stringOperand(operand)))
	}
}

func stringOperand(v value.Value) string {
	if v.Kind == value.KindString {
		return v.Str
	}
	return fmt.Sprintf("%v", v)
}

func inClause(pb *paramBuilder, pathLit string, operand value.Value, negate bool) string {
	field := "jdoc #>> '" + pathLit + "'"
	if operand.Kind != value.KindArray || len(operand.Arr) == 0 {
		if negate {
			return "TRUE"
		}
		return "FALSE"
	}
	vals := make([]string, len(operand.Arr))
	for i, v := range operand.Arr {
		vals[i] = stringOperand(v)
	}
	placeholder := pb.add(vals)
	if negate {
		return fmt.Sprintf("%s NOT IN (SELECT unnest(%s::text[]))", field, placeholder)
	}
	return fmt.Sprintf("%s IN (SELECT unnest(%s::text[]))", field, placeholder)
}

func existsClause(field string, operand value.Value) string {
	pathLit := jsonbPathLiteral(field)
	present := fmt.Sprintf("jdoc #> '%s' IS NOT NULL", pathLit)
	if operand.Truthy() {
		return present
	}
	return "NOT (" + present + ")"
}

// elemMatchClause renders an exists-subquery over jsonb_array_elements for
// `{field: {$elemMatch: inner}}`. The inner predicate is translated
// recursively and referenced against each array element's `jdoc`-shaped
// value via a correlated subquery.
func elemMatchClause(pb *paramBuilder, field string, inner value.Value) (string, error) {
	if inner.Kind != value.KindDocument {
		return "", mongoerr.New(mongoerr.CodeBadFrame, "$elemMatch requires a document operand")
	}
	pathLit := jsonbPathLiteral(field)
	elemAlias := "elem"
	clauses, _, err := translateElemMatchInner(pb, inner.Doc, elemAlias)
	if err != nil {
		return "", err
	}
	where := "TRUE"
	if clauses != "" {
		where = clauses
	}
	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM jsonb_array_elements(jdoc #> '%s') AS %s WHERE %s)",
		pathLit, elemAlias, where), nil
}

// translateElemMatchInner renders the $elemMatch body against an element
// bound to alias `elem` in the correlated subquery.
func translateElemMatchInner(pb *paramBuilder, inner *value.Document, alias string) (string, func(*value.Document) bool, error) {
	var clauses []string
	for _, pair := range inner.Pairs() {
		field, expr := pair.Key, pair.Value
		pathLit := jsonbPathLiteral(field)
		elemField := fmt.Sprintf("%s #>> '%s'", alias, pathLit)
		if expr.Kind != value.KindDocument {
			clauses = append(clauses, fmt.Sprintf("%s = %s", elemField, pb.add(stringOperand(expr))))
			continue
		}
		for _, opPair := range expr.Doc.Pairs() {
			op, operand := opPair.Key, opPair.Value
			sqlOp, ok := comparisonOperatorSQL(op)
			if !ok {
				continue // unsupported nested operator inside $elemMatch: skip, handled residually upstream
			}
			clauses = append(clauses, fmt.Sprintf("%s %s %s", elemField, sqlOp, pb.add(stringOperand(operand))))
		}
	}
	if len(clauses) == 0 {
		return "", nil, nil
	}
	return strings.Join(clauses, " AND "), nil, nil
}

func comparisonOperatorSQL(op string) (string, bool) {
	switch op {
	case "$eq":
		return "=", true
	case "$ne":
		return "<>", true
	case "$gt":
		return ">", true
	case "$gte":
		return ">=", true
	case "$lt":
		return "<", true
	case "$lte":
		return "<=", true
	default:
		return "", false
	}
}

// residualFieldMatch builds an in-memory predicate for a fragment the SQL
// translator can't faithfully render (`$where`, complex `$expr`, or any
// operator not in the core set), re-checking it against the full document
// once rows arrive from the backend.
func residualFieldMatch(field string, expr value.Value) func(*value.Document) bool {
	return func(d *value.Document) bool {
		got := d.GetPath(field)
		return matchesExpr(got, expr)
	}
}

// matchesExpr evaluates a (possibly operator-bearing) filter expression
// against a single resolved value, used both for residual re-checking and
// as the building block $elemMatch's in-memory fallback would use.
func matchesExpr(got value.Value, expr value.Value) bool {
	if expr.Kind != value.KindDocument {
		return value.Equal(got, expr)
	}
	for _, pair := range expr.Doc.Pairs() {
		op, operand := pair.Key, pair.Value
		switch op {
		case "$eq":
			if !value.Equal(got, operand) {
				return false
			}
		case "$ne":
			if value.Equal(got, operand) {
				return false
			}
		case "$gt":
			if value.Compare(got, operand) <= 0 {
				return false
			}
		case "$gte":
			if value.Compare(got, operand) < 0 {
				return false
			}
		case "$lt":
			if value.Compare(got, operand) >= 0 {
				return false
			}
		case "$lte":
			if value.Compare(got, operand) > 0 {
				return false
			}
		case "$exists":
			if (!got.IsMissing()) != operand.Truthy() {
				return false
			}
		case "$in":
			if operand.Kind != value.KindArray || !containsValue(operand.Arr, got) {
				return false
			}
		case "$nin":
			if operand.Kind == value.KindArray && containsValue(operand.Arr, got) {
				return false
			}
		default:
			// Unknown/unsupported operator: fail closed (no match) rather
			// than silently admitting rows that were never checked.
			return false
		}
	}
	return true
}

func containsValue(arr []value.Value, v value.Value) bool {
	for _, elem := range arr {
		if value.Equal(elem, v) {
			return true
		}
	}
	return false
}
