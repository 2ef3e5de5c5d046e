package policy

import (
	"regexp"
	"strings"
	"sync"
)

// fnmatch mirrors Python's fnmatch.fnmatch: '*' matches any run of
// characters (including path separators — fnmatch is not path-aware),
// '?' matches exactly one character, and '[seq]' is a character class.
// Go's path/filepath.Match stops '*' at a separator, which is wrong for
// the denied-path globs in this package (e.g. "**/.env" must match any
// depth), so patterns are translated to an anchored regexp instead.
var fnmatchCache sync.Map // pattern string -> *regexp.Regexp

func fnmatch(name, pattern string) bool {
	re, ok := fnmatchCache.Load(pattern)
	if !ok {
		compiled := regexp.MustCompile(translateFnmatch(pattern))
		fnmatchCache.Store(pattern, compiled)
		re = compiled
	}
	return re.(*regexp.Regexp).MatchString(name)
}

func translateFnmatch(pattern string) string {
	var b strings.Builder
	b.WriteString("(?s)^")
	i := 0
	for i < len(pattern) {
		c := pattern[i]
		switch c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '[':
			j := i + 1
			if j < len(pattern) && (pattern[j] == '!' || pattern[j] == '^') {
				j++
			}
			if j < len(pattern) && pattern[j] == ']' {
				j++
			}
			for j < len(pattern) && pattern[j] != ']' {
				j++
			}
			if j >= len(pattern) {
				b.WriteString(regexp.QuoteMeta("["))
			} else {
				class := pattern[i+1 : j]
				class = strings.ReplaceAll(class, `\`, `\\`)
				if strings.HasPrefix(class, "!") {
					class = "^" + class[1:]
				}
				b.WriteString("[" + class + "]")
				i = j
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
		i++
	}
	b.WriteString("$")
	return b.String()
}
