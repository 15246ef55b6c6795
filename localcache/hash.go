package localcache

import (
	"fmt"
	"hash/fnv"

	"github.com/Krishna8167/coherentcache/internal/safemap"
)

// anyHash is the default key hash: FNV-1a over the key's string form.
// It backs the entry keyHash metadata and the paging fallback order;
// callers with a cheaper per-type hash supply one via WithKeyHash.
func anyHash(key any) uint32 {
	if s, ok := key.(string); ok {
		return safemap.StringHash(s)
	}
	h := fnv.New32a()
	fmt.Fprintf(h, "%v", key)
	return h.Sum32()
}
