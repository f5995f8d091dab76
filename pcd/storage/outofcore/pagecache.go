package outofcore

import (
	"strconv"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/pkg/errors"
)

// pageRecords is the number of records in a cached page.
const pageRecords = 256

// PageCache caches full pages of committed records shared by containers.
// Committed records are never rewritten, so cached pages are never stale.
type PageCache struct {
	cache *ristretto.Cache[string, []byte]
}

// NewPageCache creates a cache holding up to maxBytes of records.
func NewPageCache(maxBytes int64) (*PageCache, error) {
	if maxBytes <= 0 {
		return nil, errors.Errorf("page cache size must be positive, got %d", maxBytes)
	}
	counters := maxBytes / 1024 * 10
	if counters < 1000 {
		counters = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: counters,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating page cache")
	}
	return &PageCache{cache: c}, nil
}

func pageKey(path string, page int64) string {
	return path + "#" + strconv.FormatInt(page, 10)
}

func (c *PageCache) get(path string, page int64) ([]byte, bool) {
	return c.cache.Get(pageKey(path, page))
}

func (c *PageCache) set(path string, page int64, b []byte) {
	c.cache.Set(pageKey(path, page), b, int64(len(b)))
}

func (c *PageCache) remove(path string, pages int64) {
	for p := int64(0); p < pages; p++ {
		c.cache.Del(pageKey(path, p))
	}
}

// Wait blocks until buffered writes are applied.
func (c *PageCache) Wait() {
	c.cache.Wait()
}

func (c *PageCache) Close() {
	c.cache.Close()
}
