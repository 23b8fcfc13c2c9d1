package registry

import (
	"strings"

	"github.com/electwix/apicache/internal/cache"
)

// Separator joins a namespace and an identifier in a cache key.
const Separator = ":"

// maxInlineTerm is the longest normalized search term kept verbatim in a
// key; longer terms are hashed.
const maxInlineTerm = 200

// BuildKey derives the cache key for identifier within namespace.
func BuildKey(namespace, identifier string) string {
	return namespace + Separator + identifier
}

// EntityKey returns the entity cache key for id.
func EntityKey(id string) string {
	return BuildKey(Entity.String(), id)
}

// SearchKey returns the search cache key for a user-entered term. Terms that
// differ only in case or spacing share a key.
func SearchKey(term string) string {
	norm := NormalizeQuery(term)
	if len(norm) > maxInlineTerm {
		return cache.ComputeKeyWithPrefix(BuildKey(Search.String(), "sha256"), []byte(norm))
	}
	return BuildKey(Search.String(), norm)
}

// NormalizeQuery lowercases term and collapses runs of whitespace.
func NormalizeQuery(term string) string {
	return strings.Join(strings.Fields(strings.ToLower(term)), " ")
}
