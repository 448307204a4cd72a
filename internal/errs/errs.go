// Package errs holds the error types that reach API clients.
//
// HTTPError is what the global error handler renders. ConfigurationError
// marks a problem with the deployment rather than the request.
package errs
