// Package index implements the persistent vector store.
//
// A Store keeps three collections in lockstep: the vectors, one metadata
// record per vector, and an exact search structure (Flat) whose row i is
// vector i. Appends deduplicate by content hash. Persist writes a complete
// new generation directory and then swaps the CURRENT pointer, so a reader
// opening the directory at any moment sees one whole generation.
package index
