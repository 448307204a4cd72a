package postgrest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildWhere(t *testing.T) {
	from := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	var f filterSet
	f.add(Filter{Op: OpEq, Column: "status", Value: "pending"})
	f.add(Filter{Op: OpGte, Column: "starts_at", Value: from})
	f.add(Filter{Op: OpIn, Column: "id", Value: []any{"a", "b"}})
	f.add(Filter{Op: OpIs, Column: "user_id", Value: nil})
	f.add(Filter{Op: OpNeq, Column: "role", Value: "viewer"})

	var params []any
	clause, next, err := f.buildWhere(whereScope{table: "shifts"}, &params, 1)
	require.NoError(t, err)

	assert.Equal(t, `"status" = $1 AND "starts_at" >= $2 AND "id" IN ($3, $4) AND "user_id" IS NULL AND "role" <> $5`, clause)
	assert.Equal(t, 6, next)
	assert.Equal(t, []any{"pending", from, "a", "b", "viewer"}, params)
}

func TestBuildWhereStartOffset(t *testing.T) {
	var f filterSet
	f.add(Filter{Op: OpEq, Column: "org_id", Value: "org-a"})

	params := []any{"admin"}
	clause, next, err := f.buildWhere(whereScope{table: "organization_members"}, &params, 2)
	require.NoError(t, err)

	assert.Equal(t, `"org_id" = $2`, clause)
	assert.Equal(t, 3, next)
	assert.Equal(t, []any{"admin", "org-a"}, params)
}

func TestBuildWhereEmptyIn(t *testing.T) {
	var f filterSet
	f.add(Filter{Op: OpIn, Column: "id", Value: []any{}})

	var params []any
	clause, next, err := f.buildWhere(whereScope{table: "shifts"}, &params, 1)
	require.NoError(t, err)

	assert.Equal(t, "FALSE", clause)
	assert.Equal(t, 1, next)
	assert.Empty(t, params)
}

func TestBuildWhereIsKeywords(t *testing.T) {
	tests := map[any]string{
		nil:     `"active" IS NULL`,
		true:    `"active" IS TRUE`,
		false:   `"active" IS FALSE`,
		"null":  `"active" IS NULL`,
		"FALSE": `"active" IS FALSE`,
	}

	for value, want := range tests {
		var f filterSet
		f.add(Filter{Op: OpIs, Column: "active", Value: value})

		var params []any
		clause, _, err := f.buildWhere(whereScope{}, &params, 1)
		require.NoError(t, err)
		assert.Equal(t, want, clause)
		assert.Empty(t, params)
	}

	var f filterSet
	f.add(Filter{Op: OpIs, Column: "active", Value: "maybe"})
	var params []any
	_, _, err := f.buildWhere(whereScope{}, &params, 1)
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestBuildWhereOrGroups(t *testing.T) {
	tests := []struct {
		name   string
		scope  whereScope
		raw    string
		want   string
		params []any
	}{
		{
			name:   "plain alternatives",
			scope:  whereScope{table: "swap_requests"},
			raw:    "status.eq.pending,status.eq.approved",
			want:   `("status" = $1 OR "status" = $2)`,
			params: []any{"pending", "approved"},
		},
		{
			name:   "wrapped in parentheses",
			scope:  whereScope{table: "swap_requests"},
			raw:    "(status.eq.pending,status.eq.approved)",
			want:   `("status" = $1 OR "status" = $2)`,
			params: []any{"pending", "approved"},
		},
		{
			name:   "in list",
			scope:  whereScope{table: "shifts"},
			raw:    `id.in.(a,b),title.in.("x,y",z)`,
			want:   `("id" IN ($1, $2) OR "title" IN ($3, $4))`,
			params: []any{"a", "b", "x,y", "z"},
		},
		{
			name:   "negation and dotted value",
			scope:  whereScope{table: "users"},
			raw:    "email.not.eq.ana@example.com,full_name.like.Ana*",
			want:   `(NOT ("email" = $1) OR "full_name" LIKE $2)`,
			params: []any{"ana@example.com", "Ana%"},
		},
		{
			name: "relation through embed alias",
			scope: whereScope{
				table:  "swap_requests",
				embeds: []Embed{{Alias: "requester", Table: "users", Columns: "full_name"}},
				relations: Relations{
					{Table: "swap_requests", Name: "requester"}: {Column: "requester_id"},
				},
			},
			raw:    "requester.full_name.ilike.*ana*,status.not.eq.cancelled",
			want:   `("requester_id" IN (SELECT "id" FROM "users" WHERE "full_name" ILIKE $1) OR NOT ("status" = $2))`,
			params: []any{"%ana%", "cancelled"},
		},
		{
			name:   "relation by table name",
			scope:  whereScope{table: "shifts"},
			raw:    "users.full_name.eq.Ana,title.is.null",
			want:   `("user_id" IN (SELECT "id" FROM "users" WHERE "full_name" = $1) OR "title" IS NULL)`,
			params: []any{"Ana"},
		},
		{
			name:   "nested and group",
			scope:  whereScope{table: "shifts"},
			raw:    "status.eq.open,and(position.eq.cook,notes.is.null)",
			want:   `("status" = $1 OR ("position" = $2 AND "notes" IS NULL))`,
			params: []any{"open", "cook"},
		},
		{
			name:   "quoted values",
			scope:  whereScope{table: "shifts"},
			raw:    `title.eq."a,b",title.like."x(y*",title.eq."v.2"`,
			want:   `("title" = $1 OR "title" LIKE $2 OR "title" = $3)`,
			params: []any{"a,b", "x(y%", "v.2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f filterSet
			f.addOr(tt.raw)

			var params []any
			clause, next, err := f.buildWhere(tt.scope, &params, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, clause)
			assert.Equal(t, tt.params, params)
			assert.Equal(t, len(tt.params)+1, next)
		})
	}
}

func TestBuildWhereMixesFiltersAndGroups(t *testing.T) {
	var f filterSet
	f.add(Filter{Op: OpEq, Column: "org_id", Value: "org-a"})
	f.addOr("status.eq.pending,status.eq.approved")
	f.add(Filter{Op: OpLt, Column: "starts_at", Value: "2026-04-01"})

	var params []any
	clause, next, err := f.buildWhere(whereScope{table: "swap_requests"}, &params, 1)
	require.NoError(t, err)

	assert.Equal(t, `"org_id" = $1 AND ("status" = $2 OR "status" = $3) AND "starts_at" < $4`, clause)
	assert.Equal(t, 5, next)
}

func TestBuildWhereErrors(t *testing.T) {
	tests := map[string]struct {
		filter *Filter
		or     string
		want   error
	}{
		"unknown operator in group": {or: "status.between.1", want: ErrInvalidFilter},
		"empty group":               {or: " , ", want: ErrInvalidFilter},
		"unbalanced group":          {or: "id.in.(a,b", want: ErrInvalidFilter},
		"unterminated quote":        {or: `title.eq."a,b`, want: ErrInvalidFilter},
		"empty nested group":        {or: "status.eq.open,and()", want: ErrInvalidFilter},
		"bad column":                {filter: &Filter{Op: OpEq, Column: "sta tus", Value: 1}, want: ErrInvalidIdentifier},
		"in without list":           {filter: &Filter{Op: OpIn, Column: "id", Value: "a"}, want: ErrInvalidFilter},
		"unknown operator":          {filter: &Filter{Op: "between", Column: "id", Value: 1}, want: ErrInvalidFilter},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var f filterSet
			if tt.filter != nil {
				f.add(*tt.filter)
			} else {
				f.addOr(tt.or)
			}

			var params []any
			_, next, err := f.buildWhere(whereScope{table: "shifts"}, &params, 4)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 4, next)
		})
	}
}

func TestResolveRelation(t *testing.T) {
	rels := Relations{
		{Table: "swap_requests", Name: "requester"}: {Column: "requester_id", RefTable: "users"},
		{Table: "shifts", Name: "organizations"}:    {Column: "org_id"},
	}

	tests := []struct {
		name  string
		table string
		embed Embed
		want  Relation
	}{
		{
			name:  "explicit alias",
			table: "swap_requests",
			embed: Embed{Alias: "requester", Table: "users"},
			want:  Relation{Column: "requester_id", RefTable: "users", RefColumn: "id"},
		},
		{
			name:  "explicit table",
			table: "shifts",
			embed: Embed{Alias: "org", Table: "organizations"},
			want:  Relation{Column: "org_id", RefTable: "organizations", RefColumn: "id"},
		},
		{
			name:  "constraint hint",
			table: "swap_requests",
			embed: Embed{Alias: "target", Table: "shifts", Hint: "swap_requests_target_shift_id_fkey"},
			want:  Relation{Column: "target_shift_id", RefTable: "shifts", RefColumn: "id"},
		},
		{
			name:  "column hint",
			table: "swap_requests",
			embed: Embed{Alias: "reviewer", Table: "users", Hint: "reviewed_by"},
			want:  Relation{Column: "reviewed_by", RefTable: "users", RefColumn: "id"},
		},
		{
			name:  "convention",
			table: "swap_requests",
			embed: Embed{Alias: "shift", Table: "shifts"},
			want:  Relation{Column: "shift_id", RefTable: "shifts", RefColumn: "id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rels.resolve(tt.table, tt.embed)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
