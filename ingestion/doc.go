// Package ingestion orchestrates the write path of the index.
//
// A Pipeline takes document records through the chunker and the
// canonicalizer, records them in the document ledger, embeds the canonical
// text in batches and appends the vectors to the index store, then commits
// a new store generation:
//
//	documents -> chunker -> canonical -> ledger -> embedder -> store -> persist
//
// Index runs synchronously. Submit queues a document on a single-worker
// pool, so asynchronous submissions are applied one at a time in order.
// Per-document problems are counted as failed and joined into the returned
// error; store consistency errors stop the call.
package ingestion
