// Package schema loads and resolves the JSON Schema library that describes
// the telemetry topics.
//
// # Overview
//
// A schema root directory contains three kinds of documents:
//
//   - definitions/ — shared fragments, referenced from any schema via $ref,
//     each optionally declaring an absolute identifier through $id
//   - common/ — topic schemas available to every deployment
//   - <telescope>/ — optional overlay schemas for one deployment variant
//
// Every topic schema declares its logical topic name in a "node" field.
// Load reads all documents, rewrites every $ref to an absolute identifier,
// inlines the referenced definitions (detecting cycles), flattens allOf
// blocks, and precompiles patternProperties expressions. The result is a
// Catalog mapping topic names to fully resolved Fragments: no $ref and no
// allOf survive resolution.
//
// # Combinators
//
// anyOf and oneOf are kept in the resolved fragments and are evaluated
// against concrete message shapes by the Matcher: anyOf selects the best
// scoring branch, oneOf requires exactly one surviving branch and reports
// ambiguity otherwise.
//
// # Usage
//
//	cat, err := schema.Load("schemas", schema.WithTelescope("SRT"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	frag, ok := cat.Schema("antenna")
package schema
