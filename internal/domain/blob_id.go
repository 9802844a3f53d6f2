package domain

import (
	"path"
	"strings"
)

// BlobID is a slash-separated storage key such as "news/4f/2a/thumb_42_news_small.jpg".
type BlobID string

// NormalizeBlobID cleans a storage key: forward slashes, no leading slash,
// no dot segments.
func NormalizeBlobID(key string) BlobID {
	key = strings.ReplaceAll(key, "\\", "/")
	key = path.Clean("/" + key)

	return BlobID(strings.TrimPrefix(key, "/"))
}

// String returns the string representation of the BlobID.
func (id BlobID) String() string {
	return string(id)
}
