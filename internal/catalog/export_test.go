package catalog

import (
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

// NewCacheForTest exposes a miniredis backed cache to the external test package.
func NewCacheForTest(t *testing.T) (*Cache, *miniredis.Miniredis) {
	return newTestCache(t)
}
