package tracker

import (
	"regexp"
	"strings"
	"sync"
)

// Match reports whether path satisfies pattern under the glob semantics
// in spec.md §4.9: "*" matches any non-separator sequence, "?" matches
// one character, "**" matches any number of path components. No
// third-party doublestar-style library appears anywhere in the
// retrieved example pack, so this is a small hand-rolled translation to
// regexp rather than a dependency.
func Match(pattern, path string) bool {
	re, err := compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(path)
}

var (
	compileMu    sync.Mutex
	compileCache = map[string]*regexp.Regexp{}
)

func compile(pattern string) (*regexp.Regexp, error) {
	compileMu.Lock()
	defer compileMu.Unlock()
	if re, ok := compileCache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(toRegexp(pattern))
	if err != nil {
		return nil, err
	}
	compileCache[pattern] = re
	return re, nil
}

func toRegexp(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	i := 0
	for i < len(pattern) {
		c := pattern[i]
		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				b.WriteString(".*")
				i += 2
				continue
			}
			b.WriteString("[^/]*")
			i++
		case '?':
			b.WriteString("[^/]")
			i++
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
			i++
		}
	}
	b.WriteString("$")
	return b.String()
}
