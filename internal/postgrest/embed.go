package postgrest

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/deppfellow/shiftboard/internal/database"
)

// planEmbeds resolves the relation of every embed of table and returns the
// projection extended with the foreign key columns the embeds need. added
// lists the columns that were not requested and must be stripped from the
// output once the embeds are attached.
func (c *Client) planEmbeds(table string, cols []string, embeds []Embed) (rels []Relation, out, added []string, err error) {
	rels = make([]Relation, len(embeds))
	out = slices.Clone(cols)

	for i, e := range embeds {
		rels[i], err = c.relations.resolve(table, e)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	if slices.Contains(out, "*") {
		return rels, out, nil, nil
	}

	for _, rel := range rels {
		if !slices.Contains(out, rel.Column) {
			out = append(out, rel.Column)
			added = append(added, rel.Column)
		}
	}
	return rels, out, added, nil
}

// resolveEmbeds attaches every embed to rows, one query per embed and per
// nesting level.
func (c *Client) resolveEmbeds(ctx context.Context, rows []*database.Row, embeds []Embed, rels []Relation) error {
	for i, e := range embeds {
		if err := c.resolveEmbed(ctx, rows, e, rels[i]); err != nil {
			return fmt.Errorf("embed %s: %w", e.Alias, err)
		}
	}
	return nil
}

func (c *Client) resolveEmbed(ctx context.Context, rows []*database.Row, e Embed, rel Relation) error {
	seen := map[string]struct{}{}
	var keys []any
	for _, row := range rows {
		v := row.Value(rel.Column)
		if v.IsNull() {
			continue
		}
		if _, ok := seen[v.Key()]; ok {
			continue
		}
		seen[v.Key()] = struct{}{}
		keys = append(keys, v.Any())
	}

	// Nothing to look up: skip the query instead of emitting IN ().
	if len(keys) == 0 {
		for _, row := range rows {
			row.Set(e.Alias, database.Null())
		}
		return nil
	}

	nestedRels, cols, added, err := c.planEmbeds(rel.RefTable, e.columnList(), e.Nested)
	if err != nil {
		return err
	}
	if !slices.Contains(cols, "*") && !slices.Contains(cols, rel.RefColumn) {
		cols = append(cols, rel.RefColumn)
		added = append(added, rel.RefColumn)
	}

	projection, err := quoteColumns(cols)
	if err != nil {
		return err
	}
	table, err := quoteIdent(rel.RefTable)
	if err != nil {
		return err
	}
	ref, err := quoteIdent(rel.RefColumn)
	if err != nil {
		return err
	}

	placeholders := make([]string, len(keys))
	for i := range keys {
		placeholders[i] = "$" + strconv.Itoa(i+1)
	}
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)", projection, table, ref, strings.Join(placeholders, ", "))
	c.log.Trace().Str("sql", sql).Int("args", len(keys)).Msg("resolving embed")

	result, err := database.Run(ctx, c.q, sql, keys...)
	if err != nil {
		return err
	}

	if len(e.Nested) > 0 {
		if err := c.resolveEmbeds(ctx, result.Rows, e.Nested, nestedRels); err != nil {
			return err
		}
	}

	lookup := make(map[string]*database.Row, len(result.Rows))
	for _, related := range result.Rows {
		lookup[related.Value(rel.RefColumn).Key()] = related
	}
	strip(result.Rows, added, e.Nested)

	for _, row := range rows {
		v := row.Value(rel.Column)
		if v.IsNull() {
			row.Set(e.Alias, database.Null())
			continue
		}
		row.Set(e.Alias, database.Object(lookup[v.Key()]))
	}
	return nil
}

// strip removes helper columns from rows, keeping any column that doubles
// as an embed alias.
func strip(rows []*database.Row, cols []string, embeds []Embed) {
	for _, col := range cols {
		if slices.ContainsFunc(embeds, func(e Embed) bool { return e.Alias == col }) {
			continue
		}
		for _, row := range rows {
			row.Delete(col)
		}
	}
}
