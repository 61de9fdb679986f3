// Package core provides the business logic for schema reconciliation.
//
// This package sits between the transports (HTTP handlers, the CLI) and the
// engines. It owns the live schema, serializes schema evolution and bounds
// how many passes run at once. Nothing here knows about HTTP.
//
// # Architecture
//
//   - Runtime: [Open] turns a [config.Config] into a wired [Service], choosing
//     the schema store, the assistant and its repair cache.
//   - Service: The entry point for mapping, reconciling, exporting and
//     promoting.
//   - PassLimiter: A semaphore that caps concurrent passes.
//
// # Reconcile Pass
//
// Each call to [Service.Reconcile] runs against a snapshot of the schema:
//
//  1. A limiter slot is acquired, waiting at most the configured time
//  2. Headers are mapped through the cascade, then caller overrides apply
//  3. Cells are validated and coerced into canonical columns
//  4. Suggested fixes are written back when requested
//  5. The session is returned for export or promotion
//
// # Schema Evolution
//
// [Service.PromoteProposals] and [Service.PromoteSynonyms] only ever append.
// The new model is persisted first and then swapped in, so passes already
// running keep the snapshot they started with.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each category has a code for support reference:
//
//   - SCH001-SCH003: Schema definition errors
//   - MAP001: Mapping override errors
//   - FILE001-FILE005: File errors (size, encoding, format)
//   - UPL002-UPL005: Pass errors (busy, cancelled, timeout)
//   - AST001: Assistant errors
package core
