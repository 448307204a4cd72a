package postgrest

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/deppfellow/shiftboard/internal/database"
	"github.com/deppfellow/shiftboard/internal/errs"
)

type operation int

const (
	opSelect operation = iota
	opInsert
	opUpdate
	opDelete
)

func (op operation) String() string {
	switch op {
	case opInsert:
		return "insert"
	case opUpdate:
		return "update"
	case opDelete:
		return "delete"
	default:
		return "select"
	}
}

// Record is an insert or update payload keyed by column.
type Record map[string]any

// CountMode selects how a total row count is produced.
type CountMode string

const CountExact CountMode = "exact"

type selectOptions struct {
	count CountMode
	head  bool
}

type SelectOption func(*selectOptions)

// WithCount asks for the total number of matching rows in Result.Count.
func WithCount(mode CountMode) SelectOption {
	return func(o *selectOptions) { o.count = mode }
}

// Head skips row materialization. Combined with WithCount(CountExact) only
// the count query runs.
func Head() SelectOption {
	return func(o *selectOptions) { o.head = true }
}

type order struct {
	column string
	desc   bool
	nulls  string
}

type OrderOption func(*order)

func Desc() OrderOption { return func(o *order) { o.desc = true } }

// Ascending sets the direction explicitly.
func Ascending(asc bool) OrderOption { return func(o *order) { o.desc = !asc } }

func NullsFirst() OrderOption { return func(o *order) { o.nulls = "FIRST" } }
func NullsLast() OrderOption { return func(o *order) { o.nulls = "LAST" } }

// Result is the outcome of Execute. When Error is set the other fields are
// zero.
type Result struct {
	Data []*database.Row

	// Count is set when WithCount was requested.
	Count *int

	// Status mirrors what PostgREST would answer: 200 for reads and
	// returning writes, 201 for returning inserts, 204 otherwise.
	Status int

	Error error
}

// SingleResult is the outcome of Single. Data is nil when no row matched.
type SingleResult struct {
	Data  *database.Row
	Error error
}

// Require returns the row, or a not found error naming entity when no row
// matched.
func (r SingleResult) Require(entity string) (*database.Row, error) {
	if r.Error != nil {
		return nil, r.Error
	}
	if r.Data == nil {
		return nil, errs.NewNotFoundError(entity+" not found", true, nil)
	}
	return r.Data, nil
}

// Builder accumulates one statement. It is consumed by the first terminal
// call; later terminal calls return ErrAlreadyExecuted.
type Builder struct {
	client *Client
	table  string
	op     operation

	selection Selection
	count     CountMode
	head      bool

	filters filterSet
	orders  []order
	limit   *int
	offset  *int

	payload   []Record
	returning bool

	err  error
	done bool
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Select sets the projection. After Insert, Update or Delete it makes the
// statement return the affected rows instead.
func (b *Builder) Select(projection string, opts ...SelectOption) *Builder {
	if b.op != opSelect {
		b.returning = true
		return b
	}

	sel, err := ParseSelect(projection)
	if err != nil {
		return b.fail(err)
	}
	b.selection = sel

	var o selectOptions
	for _, opt := range opts {
		opt(&o)
	}
	b.count = o.count
	b.head = o.head
	return b
}

// Insert adds one or more rows. Columns missing from a row get their
// default value.
func (b *Builder) Insert(rows ...Record) *Builder {
	b.op = opInsert
	if len(rows) == 0 {
		return b.fail(fmt.Errorf("%w: insert without rows", ErrEmptyPayload))
	}
	b.payload = rows
	return b
}

func (b *Builder) Update(values Record) *Builder {
	b.op = opUpdate
	if len(values) == 0 {
		return b.fail(fmt.Errorf("%w: update without columns", ErrEmptyPayload))
	}
	b.payload = []Record{values}
	return b
}

func (b *Builder) Delete() *Builder {
	b.op = opDelete
	return b
}

func (b *Builder) filter(op Op, column string, value any) *Builder {
	b.filters.add(Filter{Op: op, Column: column, Value: value})
	return b
}

func (b *Builder) Eq(column string, value any) *Builder { return b.filter(OpEq, column, value) }
func (b *Builder) Neq(column string, value any) *Builder { return b.filter(OpNeq, column, value) }
func (b *Builder) Gt(column string, value any) *Builder { return b.filter(OpGt, column, value) }
func (b *Builder) Gte(column string, value any) *Builder { return b.filter(OpGte, column, value) }
func (b *Builder) Lt(column string, value any) *Builder { return b.filter(OpLt, column, value) }
func (b *Builder) Lte(column string, value any) *Builder { return b.filter(OpLte, column, value) }

// In matches any of values. An empty list matches nothing.
func (b *Builder) In(column string, values []any) *Builder {
	if values == nil {
		values = []any{}
	}
	return b.filter(OpIn, column, values)
}

// Is compares against NULL, TRUE or FALSE (nil, true, false).
func (b *Builder) Is(column string, value any) *Builder { return b.filter(OpIs, column, value) }

func (b *Builder) Like(column, pattern string) *Builder { return b.filter(OpLike, column, pattern) }
func (b *Builder) ILike(column, pattern string) *Builder { return b.filter(OpILike, column, pattern) }

// Or adds a group of alternatives written in the PostgREST filter language,
// e.g. "status.eq.pending,requester.full_name.ilike.*ana*".
func (b *Builder) Or(filters string) *Builder {
	b.filters.addOr(filters)
	return b
}

func (b *Builder) Order(column string, opts ...OrderOption) *Builder {
	o := order{column: column}
	for _, opt := range opts {
		opt(&o)
	}
	b.orders = append(b.orders, o)
	return b
}

func (b *Builder) Limit(n int) *Builder {
	b.limit = &n
	return b
}

// Range limits the result to rows from..to, both inclusive and zero based.
func (b *Builder) Range(from, to int) *Builder {
	if from < 0 || to < from {
		return b.fail(fmt.Errorf("%w: range %d-%d", ErrInvalidFilter, from, to))
	}
	n := to - from + 1
	b.offset = &from
	b.limit = &n
	return b
}

// Execute compiles and runs the statement.
func (b *Builder) Execute(ctx context.Context) Result {
	if b.done {
		return Result{Error: ErrAlreadyExecuted}
	}
	b.done = true

	if b.err != nil {
		return Result{Error: b.err}
	}

	var (
		res Result
		err error
	)
	switch b.op {
	case opInsert:
		res, err = b.execInsert(ctx)
	case opUpdate:
		res, err = b.execUpdate(ctx)
	case opDelete:
		res, err = b.execDelete(ctx)
	default:
		res, err = b.execSelect(ctx)
	}
	if err != nil {
		return Result{Error: err}
	}
	return res
}

// Single runs the statement expecting at most one row. Reads are limited to
// one row; no row is not an error.
func (b *Builder) Single(ctx context.Context) SingleResult {
	if b.op == opSelect {
		b.Limit(1)
	}

	res := b.Execute(ctx)
	if res.Error != nil {
		return SingleResult{Error: res.Error}
	}
	if len(res.Data) == 0 {
		return SingleResult{}
	}
	return SingleResult{Data: res.Data[0]}
}

func (b *Builder) scope() whereScope {
	return whereScope{table: b.table, embeds: b.selection.Embeds, relations: b.client.relations}
}

// where compiles the filters into " WHERE ..." (or "") starting at $start.
func (b *Builder) where(params *[]any, start int) (string, int, error) {
	if b.filters.empty() {
		return "", start, nil
	}
	clause, next, err := b.filters.buildWhere(b.scope(), params, start)
	if err != nil {
		return "", start, err
	}
	return " WHERE " + clause, next, nil
}

func (b *Builder) orderLimit() (string, error) {
	var sb strings.Builder

	if len(b.orders) > 0 {
		parts := make([]string, 0, len(b.orders))
		for _, o := range b.orders {
			col, err := quoteIdent(o.column)
			if err != nil {
				return "", err
			}
			dir := "ASC"
			if o.desc {
				dir = "DESC"
			}
			part := col + " " + dir
			if o.nulls != "" {
				part += " NULLS " + o.nulls
			}
			parts = append(parts, part)
		}
		sb.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}

	if b.limit != nil {
		sb.WriteString(" LIMIT " + strconv.Itoa(*b.limit))
	}
	if b.offset != nil && *b.offset > 0 {
		sb.WriteString(" OFFSET " + strconv.Itoa(*b.offset))
	}
	return sb.String(), nil
}

func (b *Builder) run(ctx context.Context, sql string, params []any) (*database.QueryResult, error) {
	b.client.log.Trace().Str("sql", sql).Int("args", len(params)).Str("op", b.op.String()).Msg("executing query")
	return database.Run(ctx, b.client.q, sql, params...)
}

func (b *Builder) execCount(ctx context.Context, table string) (int, error) {
	var params []any
	where, _, err := b.where(&params, 1)
	if err != nil {
		return 0, err
	}

	result, err := b.run(ctx, "SELECT COUNT(*)::int AS count FROM "+table+where, params)
	if err != nil {
		return 0, err
	}
	if len(result.Rows) == 0 {
		return 0, nil
	}
	return int(result.Rows[0].Value("count").Decimal().IntPart()), nil
}

func (b *Builder) execSelect(ctx context.Context) (Result, error) {
	table, err := quoteIdent(b.table)
	if err != nil {
		return Result{}, err
	}

	var count *int
	if b.count == CountExact {
		n, err := b.execCount(ctx, table)
		if err != nil {
			return Result{}, err
		}
		count = &n
	}
	if b.head {
		return Result{Data: []*database.Row{}, Count: count, Status: http.StatusOK}, nil
	}

	rels, cols, added, err := b.client.planEmbeds(b.table, b.selection.Columns, b.selection.Embeds)
	if err != nil {
		return Result{}, err
	}
	projection, err := quoteColumns(cols)
	if err != nil {
		return Result{}, err
	}

	var params []any
	where, _, err := b.where(&params, 1)
	if err != nil {
		return Result{}, err
	}
	tail, err := b.orderLimit()
	if err != nil {
		return Result{}, err
	}

	result, err := b.run(ctx, "SELECT "+projection+" FROM "+table+where+tail, params)
	if err != nil {
		return Result{}, err
	}

	if len(b.selection.Embeds) > 0 {
		if err := b.client.resolveEmbeds(ctx, result.Rows, b.selection.Embeds, rels); err != nil {
			return Result{}, err
		}
		strip(result.Rows, added, b.selection.Embeds)
	}

	return Result{Data: result.Rows, Count: count, Status: http.StatusOK}, nil
}

func (b *Builder) returningClause() string {
	if b.returning {
		return " RETURNING *"
	}
	return ""
}

func (b *Builder) writeResult(result *database.QueryResult, status int) Result {
	if !b.returning {
		return Result{Data: []*database.Row{}, Status: http.StatusNoContent}
	}
	return Result{Data: result.Rows, Status: status}
}

func (b *Builder) execInsert(ctx context.Context) (Result, error) {
	table, err := quoteIdent(b.table)
	if err != nil {
		return Result{}, err
	}

	columns := payloadColumns(b.payload)
	if len(columns) == 0 {
		if len(b.payload) > 1 {
			return Result{}, fmt.Errorf("%w: rows without columns", ErrEmptyPayload)
		}
		result, err := b.run(ctx, "INSERT INTO "+table+" DEFAULT VALUES"+b.returningClause(), nil)
		if err != nil {
			return Result{}, err
		}
		return b.writeResult(result, http.StatusCreated), nil
	}

	quoted, err := quoteColumns(columns)
	if err != nil {
		return Result{}, err
	}

	var (
		params []any
		tuples = make([]string, 0, len(b.payload))
	)
	for _, row := range b.payload {
		slots := make([]string, len(columns))
		for i, col := range columns {
			v, ok := row[col]
			if !ok {
				slots[i] = "DEFAULT"
				continue
			}
			params = append(params, argument(v))
			slots[i] = "$" + strconv.Itoa(len(params))
		}
		tuples = append(tuples, "("+strings.Join(slots, ", ")+")")
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s%s", table, quoted, strings.Join(tuples, ", "), b.returningClause())
	result, err := b.run(ctx, sql, params)
	if err != nil {
		return Result{}, err
	}
	return b.writeResult(result, http.StatusCreated), nil
}

func (b *Builder) execUpdate(ctx context.Context) (Result, error) {
	if b.filters.empty() {
		return Result{}, ErrMissingFilter
	}

	table, err := quoteIdent(b.table)
	if err != nil {
		return Result{}, err
	}

	values := b.payload[0]
	columns := payloadColumns(b.payload)

	var params []any
	sets := make([]string, 0, len(columns))
	for _, col := range columns {
		quoted, err := quoteIdent(col)
		if err != nil {
			return Result{}, err
		}
		params = append(params, argument(values[col]))
		sets = append(sets, fmt.Sprintf("%s = $%d", quoted, len(params)))
	}

	where, _, err := b.where(&params, len(params)+1)
	if err != nil {
		return Result{}, err
	}

	sql := "UPDATE " + table + " SET " + strings.Join(sets, ", ") + where + b.returningClause()
	result, err := b.run(ctx, sql, params)
	if err != nil {
		return Result{}, err
	}
	return b.writeResult(result, http.StatusOK), nil
}

func (b *Builder) execDelete(ctx context.Context) (Result, error) {
	if b.filters.empty() {
		return Result{}, ErrMissingFilter
	}

	table, err := quoteIdent(b.table)
	if err != nil {
		return Result{}, err
	}

	var params []any
	where, _, err := b.where(&params, 1)
	if err != nil {
		return Result{}, err
	}

	result, err := b.run(ctx, "DELETE FROM "+table+where+b.returningClause(), params)
	if err != nil {
		return Result{}, err
	}
	return b.writeResult(result, http.StatusOK), nil
}

// payloadColumns is the sorted union of the payload's keys.
func payloadColumns(rows []Record) []string {
	var cols []string
	for _, row := range rows {
		for col := range row {
			if !slices.Contains(cols, col) {
				cols = append(cols, col)
			}
		}
	}
	sort.Strings(cols)
	return cols
}
