// Package middleware holds the echo middleware: request ids, request scoped
// loggers, Clerk authentication, organization context resolution, New Relic
// tracing and the global error handler.
package middleware
