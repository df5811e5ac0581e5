package model

import "time"

// CacheEntry is a previously computed answer stored in the response cache.
type CacheEntry struct {
	Answer    string         `json:"answer"`
	Sources   []SearchResult `json:"sources"`
	CreatedAt time.Time      `json:"created_at"`
}
