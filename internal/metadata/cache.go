package metadata

import (
	"os"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tinytelemetry/bundlelens/internal/model"
)

// DefaultCacheSize is the default number of ranges kept by a RangeCache.
const DefaultCacheSize = 50_000

type cacheKey struct {
	path    string
	size    int64
	modTime int64
	year    int
}

// RangeCache remembers FileTimeRange values keyed by path, size,
// modification time and reference year. A nil *RangeCache caches nothing.
type RangeCache struct {
	entries *lru.Cache[cacheKey, model.FileTimeRange]
}

// NewRangeCache creates a cache holding up to size ranges.
func NewRangeCache(size int) (*RangeCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[cacheKey, model.FileTimeRange](size)
	if err != nil {
		return nil, err
	}
	return &RangeCache{entries: c}, nil
}

// Seed stores a range computed elsewhere (for example loaded from a
// previous run) for the file as it currently exists on disk.
func (c *RangeCache) Seed(r model.FileTimeRange, year int) error {
	if c == nil {
		return nil
	}
	info, err := os.Stat(r.File.Path)
	if err != nil {
		return err
	}
	c.add(cacheKey{path: r.File.Path, size: info.Size(), modTime: info.ModTime().UnixNano(), year: year}, r)
	return nil
}

// Len returns the number of cached ranges.
func (c *RangeCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

func (c *RangeCache) get(k cacheKey) (model.FileTimeRange, bool) {
	if c == nil {
		return model.FileTimeRange{}, false
	}
	return c.entries.Get(k)
}

func (c *RangeCache) add(k cacheKey, r model.FileTimeRange) {
	if c == nil {
		return
	}
	c.entries.Add(k, r)
}
