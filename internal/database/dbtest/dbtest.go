// Package dbtest provides in-memory fakes of database.Pool and
// database.Conn that record every statement they receive and answer with
// scripted results.
package dbtest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/deppfellow/shiftboard/internal/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Statement is one recorded call. ConnID is 0 for statements run directly
// on the pool and the 1-based lease number otherwise.
type Statement struct {
	ConnID int
	SQL    string
	Args   []any
}

// Response is a scripted answer.
type Response struct {
	Columns []string
	Rows    [][]any

	// Tag overrides the command tag. When empty it is derived from the
	// statement's first keyword and the number of rows.
	Tag string

	Err error
}

// Rows builds a Response returning the given rows.
func Rows(columns []string, rows ...[]any) Response {
	return Response{Columns: columns, Rows: rows}
}

// Fail builds a Response that fails with err.
func Fail(err error) Response {
	return Response{Err: err}
}

type rule struct {
	match    string
	response Response
	once     bool
	used     bool
}

// Pool is a fake database.Pool.
type Pool struct {
	mu         sync.Mutex
	statements []Statement
	rules      []*rule
	conns      []*Conn

	acquired int
	released int
	closed   bool

	AcquireErr error
	PingErr    error
	CloseErr   error
}

var _ database.Pool = (*Pool)(nil)

func NewPool() *Pool {
	return &Pool{}
}

// On answers every statement containing match with r. Rules are checked in
// registration order; the first match wins.
func (p *Pool) On(match string, r Response) *Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules = append(p.rules, &rule{match: match, response: r})
	return p
}

// Once is like On but the rule is used for a single statement only.
func (p *Pool) Once(match string, r Response) *Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules = append(p.rules, &rule{match: match, response: r, once: true})
	return p
}

// Statements returns every recorded statement across the pool and all
// leased connections, in call order.
func (p *Pool) Statements() []Statement {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Statement, len(p.statements))
	copy(out, p.statements)
	return out
}

// SQL returns only the statement texts, in call order.
func (p *Pool) SQL() []string {
	stmts := p.Statements()
	out := make([]string, len(stmts))
	for i, s := range stmts {
		out[i] = s.SQL
	}
	return out
}

// Count returns how many recorded statements contain match.
func (p *Pool) Count(match string) int {
	n := 0
	for _, s := range p.Statements() {
		if strings.Contains(s.SQL, match) {
			n++
		}
	}
	return n
}

func (p *Pool) Acquired() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired
}

func (p *Pool) Released() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

func (p *Pool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Conns returns the connections leased so far.
func (p *Pool) Conns() []*Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Conn, len(p.conns))
	copy(out, p.conns)
	return out
}

func (p *Pool) Acquire(ctx context.Context) (database.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.AcquireErr != nil {
		return nil, p.AcquireErr
	}

	p.acquired++
	c := &Conn{pool: p, id: len(p.conns) + 1}
	p.conns = append(p.conns, c)
	return c, nil
}

func (p *Pool) Ping(context.Context) error {
	return p.PingErr
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.CloseErr
}

func (p *Pool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return p.exec(ctx, 0, sql, args)
}

func (p *Pool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return p.query(ctx, 0, sql, args)
}

func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return p.queryRow(ctx, 0, sql, args)
}

func (p *Pool) record(connID int, sql string, args []any) Response {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.statements = append(p.statements, Statement{ConnID: connID, SQL: sql, Args: args})

	for _, r := range p.rules {
		if r.once && r.used {
			continue
		}
		if strings.Contains(sql, r.match) {
			r.used = true
			return r.response
		}
	}
	return Response{}
}

func (p *Pool) exec(ctx context.Context, connID int, sql string, args []any) (pgconn.CommandTag, error) {
	if err := ctx.Err(); err != nil {
		return pgconn.CommandTag{}, err
	}
	r := p.record(connID, sql, args)
	if r.Err != nil {
		return pgconn.CommandTag{}, r.Err
	}
	return pgconn.NewCommandTag(r.tag(sql)), nil
}

func (p *Pool) query(ctx context.Context, connID int, sql string, args []any) (pgx.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := p.record(connID, sql, args)
	if r.Err != nil {
		return nil, r.Err
	}
	return newRows(r, sql), nil
}

func (p *Pool) queryRow(ctx context.Context, connID int, sql string, args []any) pgx.Row {
	rows, err := p.query(ctx, connID, sql, args)
	return &row{rows: rows, err: err}
}

func (r Response) tag(sql string) string {
	if r.Tag != "" {
		return r.Tag
	}

	verb := strings.ToUpper(strings.Fields(strings.TrimSpace(sql) + " X")[0])
	switch verb {
	case "INSERT":
		return fmt.Sprintf("INSERT 0 %d", len(r.Rows))
	case "UPDATE", "DELETE", "SELECT":
		return fmt.Sprintf("%s %d", verb, len(r.Rows))
	default:
		return verb
	}
}

// Conn is a fake leased connection.
type Conn struct {
	pool     *Pool
	id       int
	released int
}

var _ database.Conn = (*Conn)(nil)

// ID is the 1-based lease number.
func (c *Conn) ID() int { return c.id }

// Released reports how many times Release was called on this lease.
func (c *Conn) Released() int {
	c.pool.mu.Lock()
	defer c.pool.mu.Unlock()
	return c.released
}

// Statements returns the statements run on this lease, in order.
func (c *Conn) Statements() []Statement {
	var out []Statement
	for _, s := range c.pool.Statements() {
		if s.ConnID == c.id {
			out = append(out, s)
		}
	}
	return out
}

// SQL returns the statement texts run on this lease, in order.
func (c *Conn) SQL() []string {
	stmts := c.Statements()
	out := make([]string, len(stmts))
	for i, s := range stmts {
		out[i] = s.SQL
	}
	return out
}

func (c *Conn) Release() {
	c.pool.mu.Lock()
	defer c.pool.mu.Unlock()
	c.released++
	c.pool.released++
}

func (c *Conn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return c.pool.exec(ctx, c.id, sql, args)
}

func (c *Conn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return c.pool.query(ctx, c.id, sql, args)
}

func (c *Conn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return c.pool.queryRow(ctx, c.id, sql, args)
}

// rows implements pgx.Rows over a scripted Response.
type rows struct {
	response Response
	sql      string
	pos      int
	closed   bool
	err      error
}

func newRows(r Response, sql string) *rows {
	return &rows{response: r, sql: sql, pos: -1}
}

func (r *rows) Close() { r.closed = true }

func (r *rows) Err() error { return r.err }

func (r *rows) CommandTag() pgconn.CommandTag {
	return pgconn.NewCommandTag(r.response.tag(r.sql))
}

func (r *rows) FieldDescriptions() []pgconn.FieldDescription {
	fields := make([]pgconn.FieldDescription, len(r.response.Columns))
	for i, c := range r.response.Columns {
		fields[i] = pgconn.FieldDescription{Name: c}
	}
	return fields
}

func (r *rows) Next() bool {
	if r.closed {
		return false
	}
	r.pos++
	if r.pos >= len(r.response.Rows) {
		r.closed = true
		return false
	}
	return true
}

func (r *rows) current() ([]any, error) {
	if r.pos < 0 || r.pos >= len(r.response.Rows) {
		return nil, errors.New("dbtest: no current row")
	}
	return r.response.Rows[r.pos], nil
}

func (r *rows) Scan(dest ...any) error {
	values, err := r.current()
	if err != nil {
		return err
	}
	if len(dest) != len(values) {
		return fmt.Errorf("dbtest: scan expected %d destinations, got %d", len(values), len(dest))
	}
	for i, d := range dest {
		if err := assign(d, values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *rows) Values() ([]any, error) {
	values, err := r.current()
	if err != nil {
		return nil, err
	}
	out := make([]any, len(values))
	copy(out, values)
	return out, nil
}

func (r *rows) RawValues() [][]byte { return nil }

func (r *rows) Conn() *pgx.Conn { return nil }

type row struct {
	rows pgx.Rows
	err  error
}

func (r *row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	defer r.rows.Close()
	if !r.rows.Next() {
		return pgx.ErrNoRows
	}
	return r.rows.Scan(dest...)
}

func assign(dest, src any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("dbtest: scan destination must be a non-nil pointer, got %T", dest)
	}
	target := dv.Elem()

	if src == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}

	sv := reflect.ValueOf(src)
	switch {
	case sv.Type().AssignableTo(target.Type()):
		target.Set(sv)
	case sv.Type().ConvertibleTo(target.Type()):
		target.Set(sv.Convert(target.Type()))
	default:
		return fmt.Errorf("dbtest: cannot scan %T into %T", src, dest)
	}
	return nil
}
