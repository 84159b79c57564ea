// Package reindex rebuilds a vector store from the document ledger.
//
// A rebuild embeds every ledger document with the current provider into a
// brand-new store and commits it as the next generation of the index
// directory. It is how a deployment recovers after switching embedding
// models, which otherwise surfaces as a dimension mismatch on append.
//
// A rebuild that fails part way leaves the current generation untouched.
// It must not run while another writer holds the same index directory.
package reindex
