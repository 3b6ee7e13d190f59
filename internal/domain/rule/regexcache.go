package rule

import (
	"regexp"

	"github.com/dgraph-io/ristretto/v2"
)

// patternCache holds compiled matcher regexes keyed by pattern text. Rule
// files are small but every emitted event re-tests its matchers, so the
// compile step is worth caching across evaluations.
type patternCache struct {
	c *ristretto.Cache[string, *regexp.Regexp]
}

func newPatternCache() *patternCache {
	c, err := ristretto.NewCache(&ristretto.Config[string, *regexp.Regexp]{
		NumCounters: 10_000, // ~10x expected live patterns
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		// Fall back to compiling on every evaluation.
		return &patternCache{}
	}
	return &patternCache{c: c}
}

// compile returns the compiled form of pattern, caching successes.
// Compilation failures are not cached; invalid patterns are rare and the
// caller treats them as never-matching.
func (pc *patternCache) compile(pattern string) (*regexp.Regexp, error) {
	if pc.c != nil {
		if re, ok := pc.c.Get(pattern); ok {
			return re, nil
		}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if pc.c != nil {
		pc.c.Set(pattern, re, 1)
	}
	return re, nil
}

// patterns is shared by all evaluations in the process; matching stays
// stateless from the caller's point of view.
var patterns = newPatternCache()
