package permit

import (
	"fmt"
	"time"
)

// Effect represents the outcome a grant contributes when it matches
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Grant is a single conditional permission: a pattern, an optional
// condition list (empty means unconditional) and an effect. The zero
// effect is treated as allow.
type Grant struct {
	Pattern    string      `json:"pattern" yaml:"pattern"`
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Effect     Effect      `json:"effect,omitempty" yaml:"effect,omitempty"`
}

// Denies reports whether the grant carries an explicit deny effect.
func (g Grant) Denies() bool { return g.Effect == EffectDeny }

// Decision is the result of evaluating a required permission against a
// grant list.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Matched   []Grant   `json:"matched,omitempty"`
	DeniedBy  []Grant   `json:"denied_by,omitempty"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Resolver applies grant lists to a required permission. StrictMode
// forces a deny whenever no grant matched, even if nothing denied.
type Resolver struct {
	Matcher    *Matcher
	StrictMode bool
}

// NewResolver returns a Resolver with default wildcard matching.
func NewResolver() *Resolver {
	return &Resolver{Matcher: NewMatcher()}
}

// Decide walks grants in order. A matched deny records the grant, sets
// Allowed=false and stops immediately; a matched allow sets Allowed=true
// but iteration continues so a later deny can still override. An empty
// required permission never matches anything and is denied outright.
func (r *Resolver) Decide(required string, grants []Grant, ctx Context) *Decision {
	d := &Decision{Timestamp: time.Now()}
	if required == "" {
		d.Reason = "empty permission"
		return d
	}
	m := r.Matcher
	if m == nil {
		m = NewMatcher()
	}
	for _, g := range grants {
		if !m.Matches(required, g.Pattern) {
			continue
		}
		if !EvaluateConditions(g.Conditions, ctx) {
			continue
		}
		d.Matched = append(d.Matched, g)
		if g.Denies() {
			d.DeniedBy = append(d.DeniedBy, g)
			d.Allowed = false
			break
		}
		d.Allowed = true
	}
	if r.StrictMode && len(d.Matched) == 0 {
		d.Allowed = false
		d.Reason = "strict mode: no matching grants"
		return d
	}
	switch {
	case len(d.DeniedBy) > 0:
		d.Reason = fmt.Sprintf("denied by %s", d.DeniedBy[0].Pattern)
	case d.Allowed:
		d.Reason = fmt.Sprintf("allowed by %s", firstAllow(d.Matched).Pattern)
	default:
		d.Reason = "no matching permissions"
	}
	return d
}

func firstAllow(matched []Grant) Grant {
	for _, g := range matched {
		if !g.Denies() {
			return g
		}
	}
	return Grant{}
}
