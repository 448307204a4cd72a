package postgrest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/deppfellow/shiftboard/internal/database"
)

// Op is a filter operator, named as in PostgREST query strings.
type Op string

const (
	OpEq    Op = "eq"
	OpNeq   Op = "neq"
	OpGt    Op = "gt"
	OpGte   Op = "gte"
	OpLt    Op = "lt"
	OpLte   Op = "lte"
	OpIn    Op = "in"
	OpIs    Op = "is"
	OpLike  Op = "like"
	OpILike Op = "ilike"
)

var comparators = map[Op]string{
	OpEq:    "=",
	OpNeq:   "<>",
	OpGt:    ">",
	OpGte:   ">=",
	OpLt:    "<",
	OpLte:   "<=",
	OpLike:  "LIKE",
	OpILike: "ILIKE",
}

func (op Op) valid() bool {
	if _, ok := comparators[op]; ok {
		return true
	}
	return op == OpIn || op == OpIs
}

// Filter is one predicate. For OpIn, Value holds a []any.
type Filter struct {
	Op     Op
	Column string
	Value  any
}

// filterSet holds the filters and raw OR groups of one query, in the order
// they were added.
type filterSet struct {
	entries []filterEntry
}

type filterEntry struct {
	filter *Filter
	or     string
}

func (f *filterSet) add(filter Filter) {
	f.entries = append(f.entries, filterEntry{filter: &filter})
}

func (f *filterSet) addOr(raw string) {
	f.entries = append(f.entries, filterEntry{or: raw})
}

func (f *filterSet) empty() bool {
	return len(f.entries) == 0
}

// whereScope carries what OR groups need to compile relation clauses.
type whereScope struct {
	table     string
	embeds    []Embed
	relations Relations
}

// buildWhere compiles every filter and OR group, joined with AND, appending
// arguments to params. Placeholders start at $start. It returns the clause
// without the WHERE keyword and the next free placeholder number.
func (f *filterSet) buildWhere(scope whereScope, params *[]any, start int) (string, int, error) {
	n := start
	parts := make([]string, 0, len(f.entries))

	for _, e := range f.entries {
		var (
			frag string
			err  error
		)
		if e.filter != nil {
			frag, n, err = compileFilter(*e.filter, params, n)
		} else {
			frag, n, err = compileOr(scope, e.or, params, n)
		}
		if err != nil {
			return "", start, err
		}
		parts = append(parts, frag)
	}

	return strings.Join(parts, " AND "), n, nil
}

func compileFilter(f Filter, params *[]any, n int) (string, int, error) {
	col, err := quoteIdent(f.Column)
	if err != nil {
		return "", n, err
	}

	switch f.Op {
	case OpIn:
		values, ok := f.Value.([]any)
		if !ok {
			return "", n, fmt.Errorf("%w: in on %s needs a []any, got %T", ErrInvalidFilter, f.Column, f.Value)
		}
		if len(values) == 0 {
			return "FALSE", n, nil
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			*params = append(*params, argument(v))
			placeholders[i] = "$" + strconv.Itoa(n)
			n++
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")), n, nil

	case OpIs:
		keyword, err := isKeyword(f.Value)
		if err != nil {
			return "", n, fmt.Errorf("%w: is on %s: %v", ErrInvalidFilter, f.Column, err)
		}
		return fmt.Sprintf("%s IS %s", col, keyword), n, nil
	}

	cmp, ok := comparators[f.Op]
	if !ok {
		return "", n, fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, f.Op)
	}

	*params = append(*params, argument(f.Value))
	return fmt.Sprintf("%s %s $%d", col, cmp, n), n + 1, nil
}

// isKeyword accepts nil/true/false and their PostgREST spellings.
func isKeyword(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		if x {
			return "TRUE", nil
		}
		return "FALSE", nil
	case string:
		switch strings.ToLower(x) {
		case "null":
			return "NULL", nil
		case "true":
			return "TRUE", nil
		case "false":
			return "FALSE", nil
		}
	}
	return "", fmt.Errorf("expected null, true or false, got %v", v)
}

func argument(v any) any {
	if dv, ok := v.(database.Value); ok {
		return dv.Any()
	}
	return v
}

// compileOr compiles one raw OR group such as
//
//	status.eq.pending,user.full_name.ilike.*ana*,id.in.(a,b)
//
// Each clause is column.op.value or relation.column.op.value, with an
// optional not. before op. Relation clauses become a subquery on the
// related table using the same relation metadata as embeds. Values may be
// double quoted to carry commas or parentheses.
func compileOr(scope whereScope, raw string, params *[]any, n int) (string, int, error) {
	return compileGroup(scope, unwrapParens(strings.TrimSpace(raw)), " OR ", params, n)
}

// compileGroup compiles comma separated clauses joined with joiner. A clause
// written and(...) or or(...) is compiled as a nested group.
func compileGroup(scope whereScope, raw, joiner string, params *[]any, n int) (string, int, error) {
	clauses, err := splitTopLevel(raw, ',')
	if err != nil {
		return "", n, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}

	start := n
	frags := make([]string, 0, len(clauses))
	for _, c := range clauses {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}

		var frag string
		if inner, join, ok := nestedGroup(c); ok {
			frag, n, err = compileGroup(scope, inner, join, params, n)
		} else {
			var clause orClause
			clause, err = parseClause(c)
			if err == nil {
				frag, n, err = clause.compile(scope, params, n)
			}
		}
		if err != nil {
			return "", start, err
		}
		frags = append(frags, frag)
	}

	if len(frags) == 0 {
		return "", start, fmt.Errorf("%w: empty group", ErrInvalidFilter)
	}
	return "(" + strings.Join(frags, joiner) + ")", n, nil
}

func nestedGroup(c string) (inner, joiner string, ok bool) {
	for prefix, join := range map[string]string{"and(": " AND ", "or(": " OR "} {
		if strings.HasPrefix(c, prefix) && strings.HasSuffix(c, ")") {
			return c[len(prefix) : len(c)-1], join, true
		}
	}
	return "", "", false
}

// unwrapParens drops one pair of parentheses enclosing the whole string.
func unwrapParens(s string) string {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return s
	}
	inner := s[1 : len(s)-1]
	if _, err := splitTopLevel(inner, ','); err != nil {
		return s
	}
	return inner
}

type orClause struct {
	relation string
	filter   Filter
	negate   bool
}

func parseClause(c string) (orClause, error) {
	parts := strings.Split(c, ".")

	// column.[not.]op.value
	if cl, ok := clauseAt(parts, 1); ok {
		cl.filter.Column = parts[0]
		return cl, nil
	}

	// relation.column.[not.]op.value
	if len(parts) > 1 {
		if cl, ok := clauseAt(parts, 2); ok {
			cl.relation = parts[0]
			cl.filter.Column = parts[1]
			return cl, nil
		}
	}

	return orClause{}, fmt.Errorf("%w: cannot parse %q", ErrInvalidFilter, c)
}

// clauseAt reads [not.]op.value starting at parts[i].
func clauseAt(parts []string, i int) (orClause, bool) {
	var cl orClause
	if i < len(parts) && parts[i] == "not" {
		cl.negate = true
		i++
	}
	if i+1 >= len(parts) || !Op(parts[i]).valid() {
		return orClause{}, false
	}

	cl.filter.Op = Op(parts[i])
	raw := strings.Join(parts[i+1:], ".")

	switch cl.filter.Op {
	case OpIn:
		cl.filter.Value = listValues(raw)
	case OpIs:
		cl.filter.Value = raw
	case OpLike, OpILike:
		cl.filter.Value = strings.ReplaceAll(unquote(raw), "*", "%")
	default:
		cl.filter.Value = unquote(raw)
	}
	return cl, true
}

// unquote strips one pair of double quotes around a value.
func unquote(raw string) string {
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		return raw[1 : len(raw)-1]
	}
	return raw
}

// listValues parses (a,b,"c,d").
func listValues(raw string) []any {
	raw = unwrapParens(strings.TrimSpace(raw))
	if strings.TrimSpace(raw) == "" {
		return []any{}
	}

	var (
		out     []any
		cur     strings.Builder
		inQuote bool
	)
	flush := func() {
		out = append(out, strings.TrimSpace(cur.String()))
		cur.Reset()
	}
	for _, r := range raw {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == ',' && !inQuote:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

func (cl orClause) compile(scope whereScope, params *[]any, n int) (string, int, error) {
	frag, next, err := compileFilter(cl.filter, params, n)
	if err != nil {
		return "", n, err
	}
	if cl.negate {
		frag = "NOT (" + frag + ")"
	}

	if cl.relation == "" {
		return frag, next, nil
	}

	rel, err := scope.relations.relationFor(scope.table, cl.relation, scope.embeds)
	if err != nil {
		return "", n, err
	}

	fk, err := quoteIdent(rel.Column)
	if err != nil {
		return "", n, err
	}
	ref, err := quoteIdent(rel.RefColumn)
	if err != nil {
		return "", n, err
	}
	refTable, err := quoteIdent(rel.RefTable)
	if err != nil {
		return "", n, err
	}

	return fmt.Sprintf("%s IN (SELECT %s FROM %s WHERE %s)", fk, ref, refTable, frag), next, nil
}
