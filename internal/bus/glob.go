package bus

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// HasWildcard reports whether pattern contains a glob metacharacter.
func HasWildcard(pattern string) bool {
	return strings.ContainsAny(pattern, "*?")
}

// IsMatching reports whether topic matches pattern. '*' matches any run of characters,
// including '.', and '?' matches exactly one.
func IsMatching(topic, pattern string) bool {
	t, p := 0, 0
	star, mark := -1, 0
	for t < len(topic) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == topic[t]):
			t++
			p++
		case p < len(pattern) && pattern[p] == '*':
			star = p
			mark = t
			p++
		case star >= 0:
			p = star + 1
			mark++
			t = mark
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

type matchKey struct {
	topic   string
	pattern string
}

// matcher memoises IsMatching results in a bounded LRU.
type matcher struct {
	memo *lru.Cache[matchKey, bool]
}

func newMatcher(size int) *matcher {
	return &matcher{memo: newCache[matchKey, bool](size)}
}

func newCache[K comparable, V any](size int) *lru.Cache[K, V] {
	if size <= 0 {
		size = defaultMatchCacheSize
	}
	c, err := lru.New[K, V](size)
	if err != nil {
		// only returned for non-positive sizes
		panic(err)
	}
	return c
}

func (m *matcher) match(topic, pattern string) bool {
	if pattern == topic {
		return true
	}
	if !HasWildcard(pattern) {
		return false
	}
	key := matchKey{topic: topic, pattern: pattern}
	if ok, hit := m.memo.Get(key); hit {
		return ok
	}
	ok := IsMatching(topic, pattern)
	m.memo.Add(key, ok)
	return ok
}

func (m *matcher) purge() {
	m.memo.Purge()
}

func (m *matcher) len() int {
	return m.memo.Len()
}
