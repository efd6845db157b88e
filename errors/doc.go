// Package errors provides standardized error handling patterns for StatusKit.
//
// # Overview
//
// The errors package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input or lookup,
// non-retryable), and Fatal (unrecoverable, stop processing).
//
// The sentinel variables map directly onto the failure families of the
// client: schema loading problems are fatal and abort catalog construction,
// path and topic lookups are invalid and reported synchronously to the
// caller, transport hiccups are transient and retried by the receive loop.
//
// The classification integrates with Go's standard error handling,
// supporting errors.Is(), errors.As(), and error wrapping chains.
//
// # Quick Start
//
// Return standard error variables for known conditions:
//
//	if _, ok := c.trees[topic]; !ok {
//	    return errors.ErrNotSubscribed
//	}
//
// Wrap errors with component context:
//
//	if err := json.Unmarshal(payload, &update); err != nil {
//	    return errors.WrapInvalid(err, "Client", "receive", "decode payload")
//	}
//
// Classify errors for handling decisions:
//
//	if errors.IsTransient(err) {
//	    continue // receive loop retries
//	}
package errors
