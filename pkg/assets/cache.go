// Package assets holds the build-scoped cache of resolved CDN assets shared
// between the resolution and rewrite passes.
package assets

import (
	"fmt"
	"path"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// Category is a closed set of asset kinds the cache knows about.
type Category int

const (
	Images Category = iota
)

// Categories lists every category in emission order.
var Categories = []Category{Images}

func (c Category) String() string {
	switch c {
	case Images:
		return "images"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// ParseCategory maps a manifest key back onto a Category.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(s) {
	case "images":
		return Images, nil
	default:
		return 0, fmt.Errorf("unknown asset category %q", s)
	}
}

// Record is one resolved asset.
type Record struct {
	LocalPath   string `json:"local_path" yaml:"local_path"`
	PublishPath string `json:"publish_path" yaml:"publish_path"`
	CDNURL      string `json:"cdn_url" yaml:"cdn_url"`
	PublicID    string `json:"public_id,omitempty" yaml:"public_id,omitempty"`
	Width       int    `json:"width,omitempty" yaml:"width,omitempty"`
	Height      int    `json:"height,omitempty" yaml:"height,omitempty"`
}

// Key normalises a publish path so "/images/./a.png", "images/a.png" and an
// NFD-encoded file name all land on the same entry.
func Key(publishPath string) string {
	p := norm.NFC.String(strings.TrimSpace(publishPath))
	if p == "" {
		return ""
	}
	return path.Clean("/" + p)
}

type bucket struct {
	records []Record
	index   map[string]int
}

func newBucket(records []Record) (*bucket, error) {
	b := &bucket{
		records: make([]Record, 0, len(records)),
		index:   make(map[string]int, len(records)),
	}
	for _, r := range records {
		k := Key(r.PublishPath)
		if k == "" {
			return nil, fmt.Errorf("asset record for %q has no publish path", r.LocalPath)
		}
		if _, dup := b.index[k]; dup {
			return nil, fmt.Errorf("duplicate asset record for %s", k)
		}
		b.index[k] = len(b.records)
		b.records = append(b.records, r)
	}
	return b, nil
}

// Cache maps each category to its resolved records. It belongs to a single
// build: populate it once per category with Set, then read it from any
// number of goroutines.
type Cache struct {
	mu     sync.RWMutex
	images *bucket
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

func (c *Cache) slot(cat Category) (**bucket, error) {
	switch cat {
	case Images:
		return &c.images, nil
	default:
		return nil, fmt.Errorf("unknown asset category %v", cat)
	}
}

// Set assigns the records for a category. Records must have distinct publish
// paths; the given order is kept.
func (c *Cache) Set(cat Category, records []Record) error {
	b, err := newBucket(records)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	slot, err := c.slot(cat)
	if err != nil {
		return err
	}
	*slot = b
	return nil
}

// Populated reports whether Set has been called for cat.
func (c *Cache) Populated(cat Category) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	slot, err := c.slot(cat)
	return err == nil && *slot != nil
}

// Lookup finds the record for a publish path.
func (c *Cache) Lookup(cat Category, publishPath string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	slot, err := c.slot(cat)
	if err != nil || *slot == nil {
		return Record{}, false
	}
	i, ok := (*slot).index[Key(publishPath)]
	if !ok {
		return Record{}, false
	}
	return (*slot).records[i], true
}

// Records returns a copy of the records for cat in insertion order.
func (c *Cache) Records(cat Category) []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	slot, err := c.slot(cat)
	if err != nil || *slot == nil {
		return nil
	}
	return append([]Record(nil), (*slot).records...)
}

// Len returns the number of records across all categories.
func (c *Cache) Len() int {
	n := 0
	for _, cat := range Categories {
		n += len(c.Records(cat))
	}
	return n
}
