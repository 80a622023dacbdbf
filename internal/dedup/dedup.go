package dedup

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Set tracks which normalized URLs have been seen across a run. Visit is the
// only operation: it records the URL and reports whether this was its first
// appearance.
type Set interface {
	Visit(ctx context.Context, normalizedURL string) (first bool, err error)
	Close() error
}

// Normalize canonicalizes a URL so that cosmetic variants collapse to one
// key: scheme and host are lowercased, the fragment is dropped, query
// parameters are sorted, and a trailing slash is trimmed everywhere except
// the root path.
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("normalize url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("normalize url: %q is not absolute", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if u.RawQuery != "" {
		params := u.Query()
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var b strings.Builder
		for _, k := range keys {
			vals := params[k]
			sort.Strings(vals)
			for _, v := range vals {
				if b.Len() > 0 {
					b.WriteByte('&')
				}
				b.WriteString(url.QueryEscape(k))
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(v))
			}
		}
		u.RawQuery = b.String()
	}

	if u.Path == "" {
		u.Path = "/"
	} else if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	return u.String(), nil
}

// MemorySet is the in-process Set used for single-run dedup.
type MemorySet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

var _ Set = (*MemorySet)(nil)

// NewMemorySet creates an empty in-memory set.
func NewMemorySet() *MemorySet {
	return &MemorySet{seen: make(map[string]struct{})}
}

func (m *MemorySet) Visit(_ context.Context, normalizedURL string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[normalizedURL]; ok {
		return false, nil
	}
	m.seen[normalizedURL] = struct{}{}
	return true, nil
}

// Len reports how many distinct URLs have been visited.
func (m *MemorySet) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

func (m *MemorySet) Close() error { return nil }
