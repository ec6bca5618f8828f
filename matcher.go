package permit

import "strings"

// Matcher decides whether a granted permission pattern matches a
// requested permission. Patterns are compared segment-wise: a "*"
// segment matches any single non-empty segment at the same position,
// and the bare pattern "*" matches any permission. Segment counts must
// be equal; a wildcard never absorbs more than one segment.
type Matcher struct {
	Separator string
	// Wildcards enables "*" handling. When false only exact string
	// equality matches.
	Wildcards bool
}

// NewMatcher returns a Matcher with the default separator and wildcard
// matching enabled.
func NewMatcher() *Matcher {
	return &Matcher{Separator: DefaultSeparator, Wildcards: true}
}

// Matches reports whether pattern grants the requested permission.
func (m *Matcher) Matches(requested, pattern string) bool {
	if requested == pattern {
		return true
	}
	if !m.Wildcards {
		return false
	}
	if pattern == Wildcard {
		return true
	}
	sep := m.Separator
	if sep == "" {
		sep = DefaultSeparator
	}
	if !strings.Contains(pattern, Wildcard) {
		return false
	}
	reqSegs := strings.Split(requested, sep)
	patSegs := strings.Split(pattern, sep)
	if len(reqSegs) != len(patSegs) {
		return false
	}
	for i, ps := range patSegs {
		if ps == Wildcard {
			if reqSegs[i] == "" {
				return false
			}
			continue
		}
		if ps != reqSegs[i] {
			return false
		}
	}
	return true
}
