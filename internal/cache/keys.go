package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// BuildKey derives the deterministic cache key for a request: the path, the
// query parameters sorted by name then value, and the identity scope ("anon",
// a user ID, or "shared" for responses identical for every caller). Requests
// that differ only in query parameter order map to the same key.
func BuildKey(path string, query url.Values, scope string) string {
	var b strings.Builder
	b.WriteString(path)
	b.WriteByte('?')

	names := make([]string, 0, len(query))
	for name := range query {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		values := append([]string(nil), query[name]...)
		sort.Strings(values)
		for j, v := range values {
			if i > 0 || j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(name))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}

	b.WriteByte('|')
	b.WriteString(scope)

	return fmt.Sprintf("%016x", xxhash.Sum64String(b.String()))
}

// SharedScope is the identity component for responses not scoped to a user.
const SharedScope = "shared"

// UserTag returns the invalidation tag covering every cached response scoped
// to the given user.
func UserTag(userID string) string {
	return "user_" + userID
}

// ResourceTag returns the invalidation tag covering cached views of a single
// resource instance, e.g. ResourceTag("complaints", "123") -> "complaints_id_123".
func ResourceTag(base, id string) string {
	return base + "_id_" + id
}
