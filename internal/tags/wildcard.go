package tags

import (
	"regexp"
	"strings"
)

// keyPattern and valuePattern compile a "*"-bearing spec string into an
// anchored regexp; "*" may appear at either end or in the middle.
func keyPattern(pattern string) *regexp.Regexp   { return compileWildcard(pattern) }
func valuePattern(pattern string) *regexp.Regexp { return compileWildcard(pattern) }

func compileWildcard(pattern string) *regexp.Regexp {
	parts := strings.Split(pattern, "*")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("^" + strings.Join(quoted, ".*") + "$")
}
