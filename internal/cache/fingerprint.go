// Package cache memoizes task results by a fingerprint of the task
// identity and its normalized inputs, with TTL expiry and at most one live
// computation per fingerprint.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
)

// Fingerprint derives the cache key for one task invocation: a sha256 over
// the task identity and a canonical rendering of its arguments. Arguments
// named in exclude do not influence the key, so e.g. passing a different
// shared session handle still hits the same entry.
func Fingerprint(task string, args map[string]any, exclude ...string) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		if slices.Contains(exclude, k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	h.Write([]byte(task))
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{0})
		// Fall back to fmt for values json refuses (chans, funcs).
		if data, err := json.Marshal(args[k]); err == nil {
			h.Write(data)
		} else {
			fmt.Fprintf(h, "%v", args[k])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
