package postgrest

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/deppfellow/shiftboard/internal/database"
)

// RPC calls a set returning or scalar function with named arguments:
//
//	SELECT * FROM name(arg_a => $1, arg_b => $2)
//
// Arguments are passed in name order.
func (c *Client) RPC(ctx context.Context, name string, params map[string]any) Result {
	fn, err := quoteIdent(name)
	if err != nil {
		return Result{Error: err}
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, len(keys))
	named := make([]string, 0, len(keys))
	for _, k := range keys {
		arg, err := quoteIdent(k)
		if err != nil {
			return Result{Error: err}
		}
		args = append(args, argument(params[k]))
		named = append(named, fmt.Sprintf("%s => $%d", arg, len(args)))
	}

	sql := fmt.Sprintf("SELECT * FROM %s(%s)", fn, strings.Join(named, ", "))
	c.log.Trace().Str("sql", sql).Int("args", len(args)).Msg("calling function")

	result, err := database.Run(ctx, c.q, sql, args...)
	if err != nil {
		return Result{Error: err}
	}
	return Result{Data: result.Rows, Status: http.StatusOK}
}
