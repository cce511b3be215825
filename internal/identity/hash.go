// Package identity derives content-addressed page identifiers.
package identity

import (
	"github.com/spaolacci/murmur3"
	"github.com/zallek/galaxy/internal/domain"
)

// Hash maps a URL to its page id. The 64-bit murmur3 sum is reinterpreted as a
// signed integer so it fits an SQLite INTEGER PRIMARY KEY.
func Hash(url string) domain.PageID {
	return domain.PageID(int64(murmur3.Sum64([]byte(url))))
}
