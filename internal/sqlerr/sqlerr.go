// Package sqlerr turns database and query builder failures into HTTP
// errors.
//
// Driver errors are classified by SQLSTATE (see MapCode) and rendered with
// a machine code such as SHIFT_ALREADY_EXISTS and a message safe to show to
// a user. Anything it cannot classify becomes a 500.
package sqlerr
