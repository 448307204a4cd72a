package postgrest

import (
	"fmt"
	"strings"

	"github.com/go-openapi/inflect"
)

// Relation is a many-to-one link from a column of the parent table to a
// column of the related table.
type Relation struct {
	// Column is the foreign key on the parent table, e.g. user_id.
	Column string

	// RefTable defaults to the embed's table.
	RefTable string

	// RefColumn defaults to "id".
	RefColumn string
}

// RelationKey addresses a relation by the parent table and the name used in
// the projection (an alias or a table name).
type RelationKey struct {
	Table string
	Name  string
}

// Relations is the static relation table.
type Relations map[RelationKey]Relation

// resolve finds how table links to the embed, trying in order:
//  1. an explicit entry keyed by the alias, then by the related table
//  2. the embed's hint: {table}_{column}_fkey, {column}_fkey or a bare column
//  3. the convention {singular related table}_id -> id
func (r Relations) resolve(table string, e Embed) (Relation, error) {
	for _, name := range []string{e.Alias, e.Table} {
		if rel, ok := r[RelationKey{Table: table, Name: name}]; ok {
			return rel.withDefaults(e.Table), nil
		}
	}

	if e.Hint != "" {
		col := hintColumn(table, e.Hint)
		if !identRe.MatchString(col) {
			return Relation{}, fmt.Errorf("%w: hint %q", ErrInvalidIdentifier, e.Hint)
		}
		return Relation{Column: col, RefTable: e.Table, RefColumn: "id"}, nil
	}

	return Relation{
		Column:    inflect.Singularize(e.Table) + "_id",
		RefTable:  e.Table,
		RefColumn: "id",
	}, nil
}

func (rel Relation) withDefaults(table string) Relation {
	if rel.RefTable == "" {
		rel.RefTable = table
	}
	if rel.RefColumn == "" {
		rel.RefColumn = "id"
	}
	return rel
}

// hintColumn turns a foreign key constraint name into the column it covers.
// PostgreSQL names single column foreign keys {table}_{column}_fkey.
func hintColumn(table, hint string) string {
	col, ok := strings.CutSuffix(hint, "_fkey")
	if !ok {
		return hint
	}
	if bare := strings.TrimPrefix(col, table+"_"); bare != "" {
		return bare
	}
	return col
}

// relationFor resolves name (an alias from the current projection or a table
// name) against table. Used by the OR filter language. A static relation
// keyed by an alias that is not embedded must name its RefTable, since
// there is no embed to take the table from.
func (r Relations) relationFor(table, name string, embeds []Embed) (Relation, error) {
	for _, e := range embeds {
		if e.Alias == name {
			return r.resolve(table, e)
		}
	}
	if rel, ok := r[RelationKey{Table: table, Name: name}]; ok && rel.RefTable == "" {
		return Relation{}, fmt.Errorf("%w: relation %q on %s has no table; embed it or set RefTable", ErrInvalidFilter, name, table)
	}
	return r.resolve(table, Embed{Alias: name, Table: name})
}
