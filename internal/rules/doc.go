// Package rules defines the validation rule model and the built-in loan tape
// catalogue.
//
// A Rule is a named, versioned, pure predicate: per-record rules check one
// Record, cross-row rules check the whole tape at once. Rules live in a
// Registry that preserves registration order, which fixes the order of
// outcomes and report rows. NewLoanTapeRegistry builds the standard
// residential catalogue from a Params carrying the shared tolerances.
package rules
