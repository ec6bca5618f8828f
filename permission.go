package permit

import "strings"

// DefaultSeparator is the segment separator used by permission strings
// ("service.resource.action") unless an engine is configured otherwise.
const DefaultSeparator = "."

// Wildcard is the segment token that matches exactly one segment of a
// requested permission, or the whole permission when it stands alone.
const Wildcard = "*"

// Normalize canonicalizes a permission string: segments are split on the
// separator, empty segments (from repeated separators or leading/trailing
// separators) are dropped, and the result is rejoined lower-cased.
// Normalize is pure and idempotent.
func Normalize(permission string) string {
	return NormalizeWith(permission, DefaultSeparator)
}

// NormalizeWith is Normalize with an explicit separator.
func NormalizeWith(permission, sep string) string {
	if permission == "" {
		return ""
	}
	parts := strings.Split(permission, sep)
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.ToLower(strings.Join(kept, sep))
}

// ParsedPermission is the structural view of a permission string. One,
// two and three segment permissions carry named fields; any other arity
// only populates Segments.
type ParsedPermission struct {
	Service  string   `json:"service,omitempty"`
	Resource string   `json:"resource,omitempty"`
	Action   string   `json:"action,omitempty"`
	Segments []string `json:"segments"`
}

// Parse splits a permission into its structural components:
// "action", "resource.action" or "service.resource.action". Permissions
// with more segments keep only the ordered segment list.
func Parse(permission string) ParsedPermission {
	return ParseWith(permission, DefaultSeparator)
}

// ParseWith is Parse with an explicit separator.
func ParseWith(permission, sep string) ParsedPermission {
	segs := strings.Split(permission, sep)
	p := ParsedPermission{Segments: segs}
	switch len(segs) {
	case 1:
		p.Action = segs[0]
	case 2:
		p.Resource = segs[0]
		p.Action = segs[1]
	case 3:
		p.Service = segs[0]
		p.Resource = segs[1]
		p.Action = segs[2]
	}
	return p
}

// Join reassembles the named fields of a ParsedPermission in order. For
// arities other than 1-3 it rejoins the raw segment list.
func (p ParsedPermission) Join(sep string) string {
	switch {
	case p.Service != "":
		return p.Service + sep + p.Resource + sep + p.Action
	case p.Resource != "":
		return p.Resource + sep + p.Action
	case p.Action != "":
		return p.Action
	}
	return strings.Join(p.Segments, sep)
}
