// Package flows holds the login and logout orchestrations behind the session manager.
//
// Each Run function takes a deps struct of plain funcs and returns a result without
// owning any resource: the auth API client, token store, metrics and audit all belong
// to the caller. Missing optional hooks default to no-ops.
//
// This package must not import the root package.
package flows
