package cache

import (
	"fmt"
	"strings"

	"github.com/FACorreiaa/loci-offline-sync/internal/types"
)

// categoryDelimiter joins a location's category list into the single TEXT
// column the cache schema uses.
const categoryDelimiter = ";"

// JoinCategories flattens a category list for storage. An empty list stores
// as the empty string.
func JoinCategories(categories []string) string {
	return strings.Join(categories, categoryDelimiter)
}

// SplitCategories reverses JoinCategories. A blank stored value decodes to an
// empty list, never to [""].
func SplitCategories(stored string) []string {
	if strings.TrimSpace(stored) == "" {
		return []string{}
	}
	return strings.Split(stored, categoryDelimiter)
}

// ValidateCategories rejects category names that would corrupt the
// delimiter-joined round trip. Applied on the write path only; data already
// in the remote store is assumed delimiter-free.
func ValidateCategories(categories []string) error {
	for _, c := range categories {
		if strings.Contains(c, categoryDelimiter) {
			return fmt.Errorf("%w: %q", types.ErrBadCategory, c)
		}
	}
	return nil
}
