// Package api defines the wire and domain types for the shoppinglist
// service: users, groups, entries, request payloads, and the structured
// error taxonomy shared by every handler.
//
// The package has zero external dependencies (Go standard library only) and
// performs no I/O. The error categories map one-to-one onto HTTP status
// codes in pkg/transport; handlers construct APIError values and never
// write raw status codes themselves.
package api
