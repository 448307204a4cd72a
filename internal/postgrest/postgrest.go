// Package postgrest is a small PostgREST style query builder over a
// database.Querier.
//
//	res := postgrest.New(conn, postgrest.WithRelations(rel)).
//		From("shifts").
//		Select("id, starts_at, user:users(id, full_name)").
//		Gte("starts_at", from).
//		Order("starts_at").
//		Limit(50).
//		Execute(ctx)
//
// Calls only record intent. A terminal call (Execute, Single) compiles the
// statement, runs it and returns the outcome as data: errors are carried in
// the result rather than returned separately. Embedded relations are fetched
// with one batched query per embed, never with a join, so every follow-up
// query runs under the same tenant marker as the main one.
package postgrest

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/deppfellow/shiftboard/internal/database"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidIdentifier = errors.New("postgrest: invalid identifier")
	ErrInvalidSelect     = errors.New("postgrest: invalid select")
	ErrInvalidFilter     = errors.New("postgrest: invalid filter")
	ErrAlreadyExecuted   = errors.New("postgrest: query already executed")
	ErrMissingFilter     = errors.New("postgrest: update and delete require a filter")
	ErrEmptyPayload      = errors.New("postgrest: empty payload")
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// quoteIdent validates and quotes a possibly schema qualified name.
func quoteIdent(name string) (string, error) {
	parts := strings.Split(name, ".")
	for _, p := range parts {
		if !identRe.MatchString(p) {
			return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
		}
	}
	return pgx.Identifier(parts).Sanitize(), nil
}

// quoteColumns quotes a projection, passing "*" through.
func quoteColumns(cols []string) (string, error) {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if c == "*" {
			out = append(out, "*")
			continue
		}
		q, err := quoteIdent(c)
		if err != nil {
			return "", err
		}
		out = append(out, q)
	}
	return strings.Join(out, ", "), nil
}

// Client builds queries against one Querier: the pool for unscoped reads,
// or the handle passed to a WithOrgContext/WithOrgTransaction callback.
type Client struct {
	q         database.Querier
	relations Relations
	log       zerolog.Logger
}

type ClientOption func(*Client)

// WithRelations sets the static relation table consulted before hints and
// naming conventions.
func WithRelations(r Relations) ClientOption {
	return func(c *Client) {
		c.relations = r
	}
}

// WithLogger logs every compiled statement at trace level.
func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = l
	}
}

func New(q database.Querier, opts ...ClientOption) *Client {
	c := &Client{q: q, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// From starts a query on table. Without a Select call the query selects "*".
func (c *Client) From(table string) *Builder {
	return &Builder{
		client:    c,
		table:     table,
		op:        opSelect,
		selection: Selection{Columns: []string{"*"}},
	}
}

// Values converts a typed slice for In.
func Values[T any](xs []T) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = x
	}
	return out
}
