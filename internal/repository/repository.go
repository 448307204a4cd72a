// Package repository holds the data access for each table, written against
// the postgrest query builder. Every method takes the database.Querier to
// run on, so callers decide whether it runs inside WithOrgContext or
// WithOrgTransaction.
package repository

import "github.com/deppfellow/shiftboard/internal/postgrest"

// Relations lists the foreign keys the naming convention cannot infer.
var Relations = postgrest.Relations{
	{Table: "swap_requests", Name: "requester"}:           {Column: "requester_id", RefTable: "users"},
	{Table: "swap_requests", Name: "target"}:              {Column: "target_user_id", RefTable: "users"},
	{Table: "organization_members", Name: "organization"}: {Column: "org_id", RefTable: "organizations"},
	{Table: "shifts", Name: "organization"}:               {Column: "org_id", RefTable: "organizations"},
}
