package permit

import (
	"context"
)

// CheckRequest is the input to Explain.
type CheckRequest struct {
	SubjectID  string  `json:"subject_id"`
	Permission string  `json:"permission"`
	Context    Context `json:"context,omitempty"`
}

// GrantTrace records how one effective grant participated in a decision.
type GrantTrace struct {
	Grant          Grant `json:"grant"`
	PatternMatched bool  `json:"pattern_matched"`
	ConditionsMet  bool  `json:"conditions_met"`
	Applied        bool  `json:"applied"`
}

// Explanation pairs a decision with a per-grant trace.
type Explanation struct {
	Request  CheckRequest `json:"request"`
	Decision *Decision    `json:"decision"`
	Traces   []GrantTrace `json:"traces"`
}

// Explain evaluates a permission the same way HasPermission does while
// recording, for every effective grant, whether its pattern matched,
// whether its conditions held and whether it contributed to the outcome.
// Grants after a matched deny are reported but never applied.
func (e *Engine) Explain(ctx context.Context, req CheckRequest) (*Explanation, error) {
	grants, err := e.EffectivePermissions(ctx, req.SubjectID)
	if err != nil {
		return nil, err
	}
	required := NormalizeWith(req.Permission, e.separator)
	evalCtx := e.buildContext(req.SubjectID, req.Context)

	decision := e.resolver.Decide(required, grants, evalCtx)

	m := e.resolver.Matcher
	traces := make([]GrantTrace, 0, len(grants))
	denied := false
	for _, g := range grants {
		t := GrantTrace{Grant: g}
		t.PatternMatched = required != "" && m.Matches(required, g.Pattern)
		if t.PatternMatched {
			t.ConditionsMet = EvaluateConditions(g.Conditions, evalCtx)
		}
		t.Applied = t.PatternMatched && t.ConditionsMet && !denied
		if t.Applied && g.Denies() {
			denied = true
		}
		traces = append(traces, t)
	}

	e.logDecision(req.SubjectID, required, decision)
	return &Explanation{Request: req, Decision: decision, Traces: traces}, nil
}
