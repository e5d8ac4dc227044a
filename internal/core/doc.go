// Package core implements the CSV import and export pipeline for DDR
// collections.
//
// It contains all domain logic independent of any transport. The web server,
// the inbox watcher and the ddrcsv command all drive it through [Service] or
// directly through [Importer] and [Exporter].
//
// # Import
//
// A batch is one CSV file of a single record kind (entities or files).
// [Importer.Import] runs it in phases:
//
//  1. Read the CSV (BOM and legacy charsets handled by [WrapForReading])
//  2. Normalize header names and controlled-vocabulary values
//  3. Validate the header against the kind's field schema
//  4. Validate every row; any invalid row aborts the batch
//  5. For files, check that parent entities and source files exist
//  6. Create or update each record and commit it through the dvcs layer
//
// Nothing on disk changes before step 6. Failures in steps 1-5 are returned
// as typed errors ([*CSVError], [*SchemaMismatchError], [*ValidationError],
// [*ReferenceError]). A failure in step 6 is recorded against its row in the
// [Report] and the batch continues.
//
// # Export
//
// [Exporter] walks a collection repository for entity.json leaves or
// master/mezzanine file documents and writes them as a fully quoted CSV in
// schema field order.
//
// # Error Handling
//
// Errors are mapped to user-facing messages with [MapError]:
//
//   - CSV001, SCH001: unreadable input, wrong header
//   - VAL001-VAL002: missing required values, values outside a vocabulary
//   - REF001, FILE001-FILE003: parent entity or source file problems
//   - GIT001: commit failure
//   - LCK001, LIM001: collection busy, too many imports
//   - EXP001: nothing to export
package core
