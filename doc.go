// Package unpackr turns messy archive drops into clean extracted trees.
// Point it at a folder full of multi-part, password-protected, renamed or
// nested archives and it classifies every file, repairs cloaked names,
// groups related parts together, resolves passwords from a persisted list
// (optionally prompting), and extracts everything recursively to a bounded
// depth. Extraction is delegated to a Backend: either an external 7-Zip
// binary driven as a subprocess, or the embedded in-process extractors.
//
// The simplest entry points are Unpackr.Run() for a single archive and
// Unpackr.ProcessDirectory() for a whole drop folder. Both return an
// ExtractionResult describing what was extracted, which passwords worked,
// and what went wrong. Failed extractions never delete source files.
package unpackr
