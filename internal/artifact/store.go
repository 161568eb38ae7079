package artifact

import (
	"context"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/zeebo/blake3"
)

// Store persists named blobs and exposes a stable retrieval URL per name.
// Writing an existing name overwrites it; the last write wins.
type Store interface {
	Put(ctx context.Context, name string, data []byte, contentType string) error
	URL(name string) string
}

// Digest is the content tag used as an ETag.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

// joinURL appends an object name to base, escaping each path segment.
func joinURL(base, name string) string {
	parts := strings.Split(strings.TrimLeft(name, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}

// ValidName rejects names that could escape the artifact namespace.
func ValidName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return false
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}
