// Package extract drives full-image extraction runs.
//
// The Engine detects an image's container format through the driver
// registry, then decodes every section in enumeration order and hands
// the bytes to a Sink. The run's durable record is the Manifest: one
// Record per attempted section, carrying the artifact path and the
// verification outcome.
//
// Failure handling follows two rules. A checksum mismatch is not an
// error: the artifact is kept and the record marked
// verification-failed. Anything structural (unsupported coding, write
// failure, cancellation) aborts the run, but the manifest accumulated
// so far is still persisted and returned alongside the error, so
// callers keep whatever was recovered.
//
// Manifests carry no timestamps: extracting the same image twice
// produces byte-identical output trees.
package extract
