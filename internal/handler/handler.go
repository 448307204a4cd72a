// Package handler is the HTTP layer. Handlers bind and validate requests
// through the validation package, call a service and write the result.
package handler
