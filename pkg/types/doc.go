// Package types defines the domain model shared across AShareInsight's
// components: companies, source documents, business concepts and their
// JSON detail tree, market-data snapshots, and the ephemeral value objects
// assembled during online retrieval.
//
// Storage choices (relational columns, JSONB blobs, vector columns) are
// concerns of pkg/store and pkg/market; this package only describes the
// semantic shape of the data.
package types
