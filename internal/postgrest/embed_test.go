package postgrest_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/deppfellow/shiftboard/internal/database/dbtest"
	"github.com/deppfellow/shiftboard/internal/postgrest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedManyToOne(t *testing.T) {
	pool := dbtest.NewPool()
	pool.On(`FROM "shifts"`, dbtest.Rows([]string{"id", "user_id"},
		[]any{"s1", "u1"},
		[]any{"s2", "u1"},
		[]any{"s3", nil},
		[]any{"s4", "u2"},
	))
	pool.On(`FROM "users"`, dbtest.Rows([]string{"id", "full_name"},
		[]any{"u1", "Ana"},
		[]any{"u2", "Ben"},
	))

	res := postgrest.New(pool).
		From("shifts").
		Select("id, user:users(id, full_name)").
		Execute(context.Background())
	require.NoError(t, res.Error)

	stmts := pool.Statements()
	require.Len(t, stmts, 2)
	assert.Equal(t, `SELECT "id", "user_id" FROM "shifts"`, stmts[0].SQL)
	assert.Equal(t, `SELECT "id", "full_name" FROM "users" WHERE "id" IN ($1, $2)`, stmts[1].SQL)
	assert.Equal(t, []any{"u1", "u2"}, stmts[1].Args)

	out, err := json.Marshal(res.Data)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"id":"s1","user":{"id":"u1","full_name":"Ana"}},
		{"id":"s2","user":{"id":"u1","full_name":"Ana"}},
		{"id":"s3","user":null},
		{"id":"s4","user":{"id":"u2","full_name":"Ben"}}
	]`, string(out))

	for _, row := range res.Data {
		assert.False(t, row.Has("user_id"), "helper column must be stripped")
	}
}

func TestEmbedKeepsRequestedForeignKey(t *testing.T) {
	pool := dbtest.NewPool()
	pool.On(`FROM "shifts"`, dbtest.Rows([]string{"id", "user_id"}, []any{"s1", "u1"}))
	pool.On(`FROM "users"`, dbtest.Rows([]string{"full_name", "id"}, []any{"Ana", "u1"}))

	res := postgrest.New(pool).
		From("shifts").
		Select("id, user_id, user:users(full_name)").
		Execute(context.Background())
	require.NoError(t, res.Error)

	assert.Equal(t, `SELECT "full_name", "id" FROM "users" WHERE "id" IN ($1)`, pool.SQL()[1])

	require.Len(t, res.Data, 1)
	row := res.Data[0]
	assert.Equal(t, "u1", row.Value("user_id").String())
	user := row.Value("user").Object()
	require.NotNil(t, user)
	assert.Equal(t, []string{"full_name"}, user.Columns())
}

func TestEmbedAllNullForeignKeysSkipsQuery(t *testing.T) {
	pool := dbtest.NewPool()
	pool.On(`FROM "shifts"`, dbtest.Rows([]string{"id", "user_id"},
		[]any{"s1", nil},
		[]any{"s2", nil},
	))

	res := postgrest.New(pool).
		From("shifts").
		Select("id, user:users(full_name)").
		Execute(context.Background())
	require.NoError(t, res.Error)

	assert.Len(t, pool.Statements(), 1)
	for _, row := range res.Data {
		assert.True(t, row.Has("user"))
		assert.True(t, row.Value("user").IsNull())
	}
}

func TestEmbedNoRowsSkipsQuery(t *testing.T) {
	pool := dbtest.NewPool()

	res := postgrest.New(pool).
		From("shifts").
		Select("*, user:users(id, name)").
		Execute(context.Background())
	require.NoError(t, res.Error)

	assert.Equal(t, []string{`SELECT * FROM "shifts"`}, pool.SQL())
	assert.Empty(t, res.Data)
}

func TestEmbedMissingRelatedRowIsNull(t *testing.T) {
	pool := dbtest.NewPool()
	pool.On(`FROM "shifts"`, dbtest.Rows([]string{"id", "user_id"}, []any{"s1", "gone"}))

	res := postgrest.New(pool).
		From("shifts").
		Select("id, user:users(full_name)").
		Execute(context.Background())
	require.NoError(t, res.Error)

	require.Len(t, res.Data, 1)
	assert.True(t, res.Data[0].Value("user").IsNull())
}

func TestEmbedNested(t *testing.T) {
	pool := dbtest.NewPool()
	pool.On(`FROM "swap_requests"`, dbtest.Rows([]string{"id", "shift_id"},
		[]any{"r1", "s1"},
		[]any{"r2", "s1"},
	))
	pool.On(`FROM "shifts"`, dbtest.Rows([]string{"id", "user_id"}, []any{"s1", "u1"}))
	pool.On(`FROM "users"`, dbtest.Rows([]string{"full_name", "id"}, []any{"Ana", "u1"}))

	res := postgrest.New(pool).
		From("swap_requests").
		Select("id, shift:shifts(id, user:users(full_name))").
		Execute(context.Background())
	require.NoError(t, res.Error)

	assert.Equal(t, []string{
		`SELECT "id", "shift_id" FROM "swap_requests"`,
		`SELECT "id", "user_id" FROM "shifts" WHERE "id" IN ($1)`,
		`SELECT "full_name", "id" FROM "users" WHERE "id" IN ($1)`,
	}, pool.SQL())

	out, err := json.Marshal(res.Data)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"id":"r1","shift":{"id":"s1","user":{"full_name":"Ana"}}},
		{"id":"r2","shift":{"id":"s1","user":{"full_name":"Ana"}}}
	]`, string(out))
}

func TestEmbedWithHintAndAlias(t *testing.T) {
	pool := dbtest.NewPool()
	pool.On(`FROM "swap_requests"`, dbtest.Rows([]string{"id", "requester_id", "target_user_id"},
		[]any{"r1", "u1", "u2"},
	))
	pool.Once(`FROM "users"`, dbtest.Rows([]string{"full_name", "id"}, []any{"Ana", "u1"}))
	pool.Once(`FROM "users"`, dbtest.Rows([]string{"full_name", "id"}, []any{"Ben", "u2"}))

	res := postgrest.New(pool).
		From("swap_requests").
		Select("id, requester:users!swap_requests_requester_id_fkey(full_name), target:users!target_user_id(full_name)").
		Execute(context.Background())
	require.NoError(t, res.Error)

	sql := pool.SQL()
	require.Len(t, sql, 3)
	assert.Equal(t, `SELECT "id", "requester_id", "target_user_id" FROM "swap_requests"`, sql[0])

	out, err := json.Marshal(res.Data)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"r1","requester":{"full_name":"Ana"},"target":{"full_name":"Ben"}}]`, string(out))
}

func TestEmbedFailurePropagates(t *testing.T) {
	pool := dbtest.NewPool()
	pool.On(`FROM "shifts"`, dbtest.Rows([]string{"id", "user_id"}, []any{"s1", "u1"}))
	pool.On(`FROM "users"`, dbtest.Fail(assert.AnError))

	res := postgrest.New(pool).
		From("shifts").
		Select("id, user:users(full_name)").
		Execute(context.Background())

	assert.ErrorIs(t, res.Error, assert.AnError)
	assert.Nil(t, res.Data)
}
