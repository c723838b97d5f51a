package badger

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// Key prefixes for the four storage regions. Dataset keys embed the
// namespace so concurrent jobs touch disjoint key ranges.
const (
	datasetMetaPrefix   = "dsmeta"
	reviewRecordPrefix  = "dsrev"
	reviewDatePrefix    = "dsrevd"
	responseCachePrefix = "llmresp"
	embeddingPrefix     = "embed"
	jobRecordPrefix     = "jobrec"
	jobDatePrefix       = "jobrecd"
	jobChatPrefix       = "jobchat"
	jobChatSeq          = "jobchatseq"

	// globalScope addresses embeddings cached before datasets were
	// namespaced.
	globalScope = "global"
)

// makeDatasetMetaKey generates the key for a dataset's metadata record.
func makeDatasetMetaKey(namespace string) []byte {
	return []byte(fmt.Sprintf("%s:%s", datasetMetaPrefix, namespace))
}

// makeReviewKey generates the primary key for a review record.
func makeReviewKey(namespace, id string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", reviewRecordPrefix, namespace, id))
}

// makeReviewPrefix generates the prefix covering all review records in
// a namespace.
func makeReviewPrefix(namespace string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", reviewRecordPrefix, namespace))
}

// makeReviewDateKey generates a composite key for the per-namespace date
// index. Format: prefix:namespace:timestamp:idhash
// Review IDs are variable-length strings, so an 8-byte hash of the ID
// keeps keys fixed-width; the full ID is stored in the value.
func makeReviewDateKey(namespace string, timestamp time.Time, id string) []byte {
	prefix := fmt.Sprintf("%s:%s:", reviewDatePrefix, namespace)
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 16 // 8 bytes for timestamp + 8 bytes for ID hash
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(timestamp.UnixMicro()))
	offset += 8
	copy(buf[offset:], hashReviewID(id))
	return buf
}

// makePartialReviewDateKey generates a partial key for date range queries.
// Format: prefix:namespace:timestamp
func makePartialReviewDateKey(namespace string, timestamp time.Time) []byte {
	prefix := fmt.Sprintf("%s:%s:", reviewDatePrefix, namespace)
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 8
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(timestamp.UnixMicro()))
	return buf
}

// makeReviewDatePrefix generates the prefix covering a namespace's whole
// date index.
func makeReviewDatePrefix(namespace string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", reviewDatePrefix, namespace))
}

// hashReviewID returns an 8-byte digest of a review ID for index keys.
func hashReviewID(id string) []byte {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(id))
	return h.Sum(nil)
}

// makeResponseCacheKey generates the key for a cached backend response.
func makeResponseCacheKey(hash string) []byte {
	return []byte(fmt.Sprintf("%s:%s", responseCachePrefix, hash))
}

// makeEmbeddingKey generates the key for a cached embedding vector.
// Format: prefix:scope:model:texthash
func makeEmbeddingKey(namespace, model, textHash string) []byte {
	scope := namespace
	if scope == "" {
		scope = globalScope
	}
	return []byte(fmt.Sprintf("%s:%s:%s:%s", embeddingPrefix, scope, model, textHash))
}

// makeJobKey generates the primary key for a job record.
func makeJobKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", jobRecordPrefix, id))
}

// makeJobDateKey generates a composite key for the job creation index.
// Format: prefix:timestamp:id
func makeJobDateKey(createdAt time.Time, id string) []byte {
	prefix := jobDatePrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 8 + len(id)
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(createdAt.UnixMicro()))
	offset += 8
	copy(buf[offset:], []byte(id))
	return buf
}

// makeChatKey generates a composite key for a job's chat log.
// Format: prefix:jobID:seq
func makeChatKey(jobID string, seq uint64) []byte {
	prefix := fmt.Sprintf("%s:%s:", jobChatPrefix, jobID)
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	buf := make([]byte, prefixSize+8)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}

// makeChatPrefix generates the prefix covering a job's whole chat log.
func makeChatPrefix(jobID string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", jobChatPrefix, jobID))
}
