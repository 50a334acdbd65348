package knowledge

import (
	"regexp"
	"strings"
)

var (
	invalidChars    = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	repeatedScore   = regexp.MustCompile(`_+`)
	leadingJunk     = regexp.MustCompile(`^[^a-zA-Z0-9]+`)
	trailingJunk    = regexp.MustCompile(`[^a-zA-Z0-9]+$`)
	collectionLimit = 63
)

// SanitizeCollectionName normalizes an arbitrary name into a valid
// collection identifier: ASCII letters/digits/underscore/hyphen, starts and
// ends alphanumeric, 3..63 characters.
func SanitizeCollectionName(name string) string {
	s := invalidChars.ReplaceAllString(name, "_")
	s = repeatedScore.ReplaceAllString(s, "_")
	s = leadingJunk.ReplaceAllString(s, "")
	s = trailingJunk.ReplaceAllString(s, "")

	if s == "" {
		return "default_collection"
	}
	if len(s) < 3 {
		s = "collection_" + s
	}
	if len(s) > collectionLimit {
		s = s[:collectionLimit]
		s = trailingJunk.ReplaceAllString(s, "")
	}
	return s
}

// CollectionForNamespace derives the document collection name for a
// namespace. Namespaces partition both collections and stored requests.
func CollectionForNamespace(namespace string) string {
	if strings.TrimSpace(namespace) == "" {
		namespace = "default"
	}
	return SanitizeCollectionName("documents_" + namespace)
}
