// Package service contains the business logic.
//
// Services sit between the handlers and the repositories. They choose the
// unit of work a call runs in: reads go through Database.WithOrgContext,
// writes through Database.WithOrgTransaction, so every statement sees the
// caller's organization marker.
package service
