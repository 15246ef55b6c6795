package safemap

import "hash/fnv"

// StringHash is the default HashFunc for string keys.
func StringHash(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
