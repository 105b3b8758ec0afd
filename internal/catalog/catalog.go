// Package catalog resolves display metadata and book membership for strategy ids.
package catalog

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/betbot/opsboard/internal/domain"
)

// Catalog is immutable after New and safe for concurrent use.
type Catalog struct {
	exact     map[string]domain.Meta
	keys      []string // sorted by length desc, then lexicographically
	automated []string
}

// New builds a catalog. Keys are matched case-insensitively; when several source keys fold to the
// same key, the lexicographically smallest source key wins.
func New(entries map[string]domain.Meta, automatedPrefixes []string) *Catalog {
	c := &Catalog{exact: make(map[string]domain.Meta, len(entries))}
	src := make([]string, 0, len(entries))
	for k := range entries {
		src = append(src, k)
	}
	sort.Strings(src)
	for _, k := range src {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" {
			continue
		}
		if _, dup := c.exact[key]; dup {
			continue
		}
		c.exact[key] = entries[k]
		c.keys = append(c.keys, key)
	}
	sort.Slice(c.keys, func(i, j int) bool {
		if len(c.keys[i]) != len(c.keys[j]) {
			return len(c.keys[i]) > len(c.keys[j])
		}
		return c.keys[i] < c.keys[j]
	})
	for _, p := range automatedPrefixes {
		if p = strings.TrimSpace(p); p != "" {
			c.automated = append(c.automated, strings.ToLower(p))
		}
	}
	return c
}

// Lookup returns metadata for id and whether the table matched.
//
// Exact match first. Otherwise the table keys that contain id or are contained by it are candidates;
// the longest candidate wins and equal lengths fall back to lexicographic order, so the result is
// deterministic for any table.
func (c *Catalog) Lookup(id string) (domain.Meta, bool) {
	key := strings.ToLower(strings.TrimSpace(id))
	if key == "" {
		return domain.Meta{Name: "unknown"}, false
	}
	if m, ok := c.exact[key]; ok {
		return m, true
	}
	for _, k := range c.keys {
		if strings.Contains(k, key) || strings.Contains(key, k) {
			return c.exact[k], true
		}
	}
	return domain.Meta{Name: DeriveLabel(id)}, false
}

// Label is the display name for id, never empty.
func (c *Catalog) Label(id string) string {
	m, _ := c.Lookup(id)
	if m.Name == "" {
		return DeriveLabel(id)
	}
	return m.Name
}

// BookOf applies the naming-prefix rule.
func (c *Catalog) BookOf(id string) domain.BookID {
	key := strings.ToLower(id)
	for _, p := range c.automated {
		if strings.HasPrefix(key, p) {
			return domain.BookAutomated
		}
	}
	return domain.BookManual
}

// DeriveLabel builds a readable label from a raw id: separators become spaces, words are title-cased.
func DeriveLabel(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return "unknown"
	}
	words := strings.FieldsFunc(id, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' '
	})
	if len(words) == 0 {
		return id
	}
	// a Caser carries state and must not be shared between goroutines
	return cases.Title(language.English).String(strings.Join(words, " "))
}
