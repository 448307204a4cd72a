package postgrest_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/deppfellow/shiftboard/internal/database"
	"github.com/deppfellow/shiftboard/internal/database/dbtest"
	"github.com/deppfellow/shiftboard/internal/errs"
	"github.com/deppfellow/shiftboard/internal/postgrest"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectCompilesFiltersOrderAndRange(t *testing.T) {
	pool := dbtest.NewPool()
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	res := postgrest.New(pool).
		From("shifts").
		Select("id, starts_at").
		Eq("org_id", "org-a").
		Gte("starts_at", from).
		Order("starts_at", postgrest.NullsLast()).
		Order("id", postgrest.Desc()).
		Range(10, 19).
		Execute(context.Background())

	require.NoError(t, res.Error)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Nil(t, res.Count)

	stmts := pool.Statements()
	require.Len(t, stmts, 1)
	assert.Equal(t,
		`SELECT "id", "starts_at" FROM "shifts" WHERE "org_id" = $1 AND "starts_at" >= $2 ORDER BY "starts_at" ASC NULLS LAST, "id" DESC LIMIT 10 OFFSET 10`,
		stmts[0].SQL)
	assert.Equal(t, []any{"org-a", from}, stmts[0].Args)
}

func TestSelectDefaultsToStar(t *testing.T) {
	pool := dbtest.NewPool()
	pool.On(`FROM "organizations"`, dbtest.Rows([]string{"id", "name"}, []any{"org-a", "Acme"}))

	res := postgrest.New(pool).From("organizations").Limit(5).Execute(context.Background())

	require.NoError(t, res.Error)
	assert.Equal(t, []string{`SELECT * FROM "organizations" LIMIT 5`}, pool.SQL())
	require.Len(t, res.Data, 1)
	assert.Equal(t, "Acme", res.Data[0].Value("name").String())
}

func TestSelectEmptyInMatchesNothing(t *testing.T) {
	pool := dbtest.NewPool()

	res := postgrest.New(pool).From("shifts").Select("id").In("id", nil).Execute(context.Background())

	require.NoError(t, res.Error)
	assert.Equal(t, []string{`SELECT "id" FROM "shifts" WHERE FALSE`}, pool.SQL())
	assert.Empty(t, res.Data)
}

func TestSelectOrWithRelation(t *testing.T) {
	pool := dbtest.NewPool()
	rels := postgrest.Relations{
		{Table: "swap_requests", Name: "requester"}: {Column: "requester_id", RefTable: "users"},
	}

	res := postgrest.New(pool, postgrest.WithRelations(rels)).
		From("swap_requests").
		Select("id, status").
		Eq("org_id", "org-a").
		Or("requester.full_name.ilike.*ana*,status.eq.approved").
		Execute(context.Background())

	require.NoError(t, res.Error)
	stmts := pool.Statements()
	require.Len(t, stmts, 1)
	assert.Equal(t,
		`SELECT "id", "status" FROM "swap_requests" WHERE "org_id" = $1 AND ("requester_id" IN (SELECT "id" FROM "users" WHERE "full_name" ILIKE $2) OR "status" = $3)`,
		stmts[0].SQL)
	assert.Equal(t, []any{"org-a", "%ana%", "approved"}, stmts[0].Args)
}

func TestSelectOrWithUnembeddedRelationNeedsTable(t *testing.T) {
	pool := dbtest.NewPool()
	rels := postgrest.Relations{
		{Table: "swap_requests", Name: "requester"}: {Column: "requester_id"},
	}

	res := postgrest.New(pool, postgrest.WithRelations(rels)).
		From("swap_requests").
		Select("id, status").
		Or("requester.full_name.ilike.*ana*,status.eq.approved").
		Execute(context.Background())

	assert.ErrorIs(t, res.Error, postgrest.ErrInvalidFilter)
	assert.Empty(t, pool.SQL())
}

func TestSelectExactCount(t *testing.T) {
	pool := dbtest.NewPool()
	pool.On("COUNT(*)", dbtest.Rows([]string{"count"}, []any{int32(42)}))
	pool.On(`SELECT "id"`, dbtest.Rows([]string{"id"}, []any{"s1"}, []any{"s2"}))

	res := postgrest.New(pool).
		From("shifts").
		Select("id", postgrest.WithCount(postgrest.CountExact)).
		Eq("org_id", "org-a").
		Limit(2).
		Execute(context.Background())

	require.NoError(t, res.Error)
	require.NotNil(t, res.Count)
	assert.Equal(t, 42, *res.Count)
	assert.Len(t, res.Data, 2)
	assert.Equal(t, []string{
		`SELECT COUNT(*)::int AS count FROM "shifts" WHERE "org_id" = $1`,
		`SELECT "id" FROM "shifts" WHERE "org_id" = $1 LIMIT 2`,
	}, pool.SQL())
}

func TestSelectHeadRunsOnlyTheCount(t *testing.T) {
	pool := dbtest.NewPool()
	pool.On("COUNT(*)", dbtest.Rows([]string{"count"}, []any{int32(7)}))

	res := postgrest.New(pool).
		From("swap_requests").
		Select("*", postgrest.WithCount(postgrest.CountExact), postgrest.Head()).
		Eq("status", "pending").
		Execute(context.Background())

	require.NoError(t, res.Error)
	require.NotNil(t, res.Count)
	assert.Equal(t, 7, *res.Count)
	assert.NotNil(t, res.Data)
	assert.Empty(t, res.Data)
	assert.Equal(t, 1, len(pool.Statements()))
}

func TestExecuteTwice(t *testing.T) {
	pool := dbtest.NewPool()
	b := postgrest.New(pool).From("shifts")

	require.NoError(t, b.Execute(context.Background()).Error)
	res := b.Execute(context.Background())

	assert.ErrorIs(t, res.Error, postgrest.ErrAlreadyExecuted)
	assert.Len(t, pool.Statements(), 1)
}

func TestSelectErrorsAreData(t *testing.T) {
	pool := dbtest.NewPool()
	pool.On(`FROM "shifts"`, dbtest.Fail(&pgconn.PgError{
		Code:    "42501",
		Message: "permission denied for table shifts",
	}))

	res := postgrest.New(pool).From("shifts").Execute(context.Background())

	require.Error(t, res.Error)
	assert.Nil(t, res.Data)
	assert.Zero(t, res.Status)

	var qe *database.QueryError
	require.True(t, errors.As(res.Error, &qe))
	assert.Equal(t, "42501", qe.Code)
}

func TestSelectRejectsBadInput(t *testing.T) {
	tests := map[string]func(*postgrest.Client) postgrest.Result{
		"select": func(c *postgrest.Client) postgrest.Result {
			return c.From("shifts").Select("id, user:users(id").Execute(context.Background())
		},
		"table": func(c *postgrest.Client) postgrest.Result {
			return c.From("shifts; DROP TABLE users").Execute(context.Background())
		},
		"order": func(c *postgrest.Client) postgrest.Result {
			return c.From("shifts").Order("starts_at desc").Execute(context.Background())
		},
		"range": func(c *postgrest.Client) postgrest.Result {
			return c.From("shifts").Range(5, 1).Execute(context.Background())
		},
	}

	for name, run := range tests {
		t.Run(name, func(t *testing.T) {
			pool := dbtest.NewPool()
			res := run(postgrest.New(pool))
			assert.Error(t, res.Error)
			assert.Empty(t, pool.Statements())
		})
	}
}

func TestSingle(t *testing.T) {
	pool := dbtest.NewPool()
	pool.On(`FROM "organization_members"`, dbtest.Rows([]string{"org_id", "role"}, []any{"org-a", "admin"}))

	res := postgrest.New(pool).
		From("organization_members").
		Select("org_id, role").
		Eq("user_id", "user_1").
		Single(context.Background())

	require.NoError(t, res.Error)
	require.NotNil(t, res.Data)
	assert.Equal(t, "admin", res.Data.Value("role").String())
	assert.Equal(t,
		[]string{`SELECT "org_id", "role" FROM "organization_members" WHERE "user_id" = $1 LIMIT 1`},
		pool.SQL())
}

func TestSingleNoRow(t *testing.T) {
	pool := dbtest.NewPool()

	res := postgrest.New(pool).From("shifts").Eq("id", "missing").Single(context.Background())
	require.NoError(t, res.Error)
	assert.Nil(t, res.Data)

	row, err := res.Require("shift")
	assert.Nil(t, row)

	var httpErr *errs.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.Status)
	assert.Equal(t, "shift not found", httpErr.Message)
}

func TestInsert(t *testing.T) {
	pool := dbtest.NewPool()
	pool.On("INSERT INTO", dbtest.Rows([]string{"id", "title"}, []any{"s1", "Morning"}, []any{"s2", "Night"}))
	starts := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	res := postgrest.New(pool).
		From("shifts").
		Insert(
			postgrest.Record{"title": "Morning", "starts_at": starts, "org_id": "org-a"},
			postgrest.Record{"title": "Night", "org_id": "org-a"},
		).
		Select("*").
		Execute(context.Background())

	require.NoError(t, res.Error)
	assert.Equal(t, http.StatusCreated, res.Status)
	assert.Len(t, res.Data, 2)

	stmts := pool.Statements()
	require.Len(t, stmts, 1)
	assert.Equal(t,
		`INSERT INTO "shifts" ("org_id", "starts_at", "title") VALUES ($1, $2, $3), ($4, DEFAULT, $5) RETURNING *`,
		stmts[0].SQL)
	assert.Equal(t, []any{"org-a", starts, "Morning", "org-a", "Night"}, stmts[0].Args)
}

func TestInsertWithoutReturning(t *testing.T) {
	pool := dbtest.NewPool()

	res := postgrest.New(pool).
		From("organizations").
		Insert(postgrest.Record{"name": "Acme"}).
		Execute(context.Background())

	require.NoError(t, res.Error)
	assert.Equal(t, http.StatusNoContent, res.Status)
	assert.Empty(t, res.Data)
	assert.Equal(t, []string{`INSERT INTO "organizations" ("name") VALUES ($1)`}, pool.SQL())
}

func TestInsertDefaultValues(t *testing.T) {
	pool := dbtest.NewPool()

	res := postgrest.New(pool).From("organizations").Insert(postgrest.Record{}).Execute(context.Background())

	require.NoError(t, res.Error)
	assert.Equal(t, []string{`INSERT INTO "organizations" DEFAULT VALUES`}, pool.SQL())
}

func TestInsertWithoutRows(t *testing.T) {
	pool := dbtest.NewPool()

	res := postgrest.New(pool).From("organizations").Insert().Execute(context.Background())

	assert.ErrorIs(t, res.Error, postgrest.ErrEmptyPayload)
	assert.Empty(t, pool.Statements())
}

func TestUpdate(t *testing.T) {
	pool := dbtest.NewPool()
	pool.On("UPDATE", dbtest.Rows([]string{"user_id", "role"}, []any{"user_2", "manager"}))

	res := postgrest.New(pool).
		From("organization_members").
		Update(postgrest.Record{"role": "manager"}).
		Eq("org_id", "org-a").
		Eq("user_id", "user_2").
		Select("*").
		Execute(context.Background())

	require.NoError(t, res.Error)
	assert.Equal(t, http.StatusOK, res.Status)
	require.Len(t, res.Data, 1)

	stmts := pool.Statements()
	require.Len(t, stmts, 1)
	assert.Equal(t,
		`UPDATE "organization_members" SET "role" = $1 WHERE "org_id" = $2 AND "user_id" = $3 RETURNING *`,
		stmts[0].SQL)
	assert.Equal(t, []any{"manager", "org-a", "user_2"}, stmts[0].Args)
}

func TestUpdateAndDeleteRequireFilter(t *testing.T) {
	pool := dbtest.NewPool()
	c := postgrest.New(pool)

	res := c.From("shifts").Update(postgrest.Record{"title": "x"}).Execute(context.Background())
	assert.ErrorIs(t, res.Error, postgrest.ErrMissingFilter)

	res = c.From("shifts").Delete().Execute(context.Background())
	assert.ErrorIs(t, res.Error, postgrest.ErrMissingFilter)

	assert.Empty(t, pool.Statements())
}

func TestDelete(t *testing.T) {
	pool := dbtest.NewPool()

	res := postgrest.New(pool).
		From("swap_requests").
		Delete().
		In("status", postgrest.Values([]string{"cancelled", "rejected"})).
		Execute(context.Background())

	require.NoError(t, res.Error)
	assert.Equal(t, http.StatusNoContent, res.Status)
	stmts := pool.Statements()
	require.Len(t, stmts, 1)
	assert.Equal(t, `DELETE FROM "swap_requests" WHERE "status" IN ($1, $2)`, stmts[0].SQL)
	assert.Equal(t, []any{"cancelled", "rejected"}, stmts[0].Args)
}

func TestBuilderInsideOrgContext(t *testing.T) {
	pool := dbtest.NewPool()
	pool.On(`FROM "shifts"`, dbtest.Rows([]string{"id"}, []any{"s1"}))
	db := dbtest.NewDatabase(t, pool)

	var data []*database.Row
	err := db.WithOrgContext(context.Background(), "org-a", func(ctx context.Context, q database.Querier) error {
		res := postgrest.New(q).From("shifts").Select("id").Execute(ctx)
		data = res.Data
		return res.Error
	})
	require.NoError(t, err)
	require.Len(t, data, 1)

	conns := pool.Conns()
	require.Len(t, conns, 1)
	assert.Equal(t, []string{
		"SELECT set_config('app.current_org_id', $1, false)",
		`SELECT "id" FROM "shifts"`,
		"SELECT set_config('app.current_org_id', '', false)",
	}, conns[0].SQL())
}

func TestResultRowsMarshalInColumnOrder(t *testing.T) {
	pool := dbtest.NewPool()
	pool.On(`FROM "shifts"`, dbtest.Rows([]string{"title", "id", "slots"}, []any{"Morning", "s1", int64(3)}))

	res := postgrest.New(pool).From("shifts").Select("title, id, slots").Execute(context.Background())
	require.NoError(t, res.Error)

	out, err := json.Marshal(res.Data)
	require.NoError(t, err)
	assert.Equal(t, `[{"title":"Morning","id":"s1","slots":3}]`, string(out))
}
