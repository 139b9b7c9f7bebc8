// Package auth implements the credential pipeline for the shoppinglist
// service: parsing HTTP Basic Authorization headers, verifying the
// credentials against the user store with bcrypt, and the gate middleware
// that attaches the verified principal to the request context.
//
// The gate runs in one of two modes, selected at route-mounting time:
// Required rejects requests without an Authorization header (401 with a
// Basic challenge), Optional forwards them anonymously. All other header
// handling is identical across modes.
//
// One behavior is preserved from the service's history and covered by
// tests: a header with a known username but a wrong password does not
// reject at the gate. The request is forwarded without a principal, and
// every handler that needs one treats its absence as not-found.
package auth
