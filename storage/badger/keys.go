package badger

// Key prefixes for different data types
const (
	documentPrefix   = "docrec:"
	checkpointPrefix = "chkpt:"
)

// makeDocumentKey generates a key for a document record by doc_id.
// Keys sort by doc_id, so prefix iteration yields doc_id order.
func makeDocumentKey(docID string) []byte {
	buf := make([]byte, len(documentPrefix)+len(docID))
	offset := copy(buf, documentPrefix)
	copy(buf[offset:], docID)
	return buf
}

// docIDFromKey strips the document prefix from a key.
func docIDFromKey(key []byte) string {
	return string(key[len(documentPrefix):])
}

// makeCheckpointKey generates a key for an index checkpoint.
func makeCheckpointKey(name string) []byte {
	return []byte(checkpointPrefix + name)
}
