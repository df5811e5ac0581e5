package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// NormalizeQuery case-folds the query and collapses whitespace runs so that
// trivially different spellings of the same question share a cache key.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// Key derives the deterministic cache key for a query. The corpus version is
// part of the key, so every successful ingestion implicitly invalidates all
// prior answers without any explicit purge.
func Key(query string, topK int, documentIDs []string, corpusVersion uint64) string {
	ids := append([]string(nil), documentIDs...)
	sort.Strings(ids)

	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00%s\x00%d", NormalizeQuery(query), topK, strings.Join(ids, ","), corpusVersion)
	return "rag:answer:" + hex.EncodeToString(h.Sum(nil))
}
