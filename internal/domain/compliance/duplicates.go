package compliance

import (
	"github.com/rips/rips/internal/domain/ingest"
)

// RemoveDuplicateGroup keeps the first record matching key and drops every
// later match. It returns a new slice and the number of records removed.
func RemoveDuplicateGroup(records []ingest.ServiceRecord, key ingest.DuplicateKey) ([]ingest.ServiceRecord, int) {
	out := make([]ingest.ServiceRecord, 0, len(records))
	seen := false
	removed := 0
	for _, r := range records {
		if r.Key() == key {
			if seen {
				removed++
				continue
			}
			seen = true
		}
		out = append(out, r)
	}
	return out, removed
}

// RemoveAllDuplicates keeps the first occurrence of every duplicate key in a
// single ordered pass. It returns a new slice and the number removed.
func RemoveAllDuplicates(records []ingest.ServiceRecord) ([]ingest.ServiceRecord, int) {
	out := make([]ingest.ServiceRecord, 0, len(records))
	seen := make(map[ingest.DuplicateKey]bool, len(records))
	for _, r := range records {
		k := r.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out, len(records) - len(out)
}
