package permit

import "testing"

func TestConditionEquals(t *testing.T) {
	ctx := Context{"role": "editor", "count": 5, "active": true}

	c := Condition{Attribute: "role", Operator: OpEquals, Value: "editor"}
	if !c.Evaluate(ctx) {
		t.Fatal("string equality should hold")
	}
	c = Condition{Attribute: "active", Operator: OpEquals, Value: true}
	if !c.Evaluate(ctx) {
		t.Fatal("bool equality should hold")
	}
	// numeric kinds compare by value
	c = Condition{Attribute: "count", Operator: OpEquals, Value: 5.0}
	if !c.Evaluate(ctx) {
		t.Fatal("int 5 should equal float 5.0")
	}
	c = Condition{Attribute: "role", Operator: OpNotEquals, Value: "viewer"}
	if !c.Evaluate(ctx) {
		t.Fatal("notEquals should hold")
	}
}

func TestConditionMissingAttribute(t *testing.T) {
	ctx := Context{"role": "editor", "empty": nil}

	c := Condition{Attribute: "missing", Operator: OpEquals, Value: "x"}
	if c.Evaluate(ctx) {
		t.Fatal("missing attribute must be false")
	}
	// notEquals would be trivially true, but a missing attribute still denies
	c = Condition{Attribute: "missing", Operator: OpNotEquals, Value: "x"}
	if c.Evaluate(ctx) {
		t.Fatal("missing attribute must be false for notEquals too")
	}
	c = Condition{Attribute: "empty", Operator: OpNotEquals, Value: "x"}
	if c.Evaluate(ctx) {
		t.Fatal("nil attribute must be false")
	}
}

func TestConditionNestedPath(t *testing.T) {
	ctx := Context{
		"subject": map[string]any{
			"id":   "alice",
			"team": map[string]any{"name": "core"},
		},
	}
	c := Condition{Attribute: "subject.team.name", Operator: OpEquals, Value: "core"}
	if !c.Evaluate(ctx) {
		t.Fatal("nested path should resolve")
	}
	c = Condition{Attribute: "subject.team.missing", Operator: OpEquals, Value: "x"}
	if c.Evaluate(ctx) {
		t.Fatal("missing leaf must be false")
	}
	c = Condition{Attribute: "subject.id.deeper", Operator: OpEquals, Value: "x"}
	if c.Evaluate(ctx) {
		t.Fatal("traversing through a scalar must be false")
	}
}

func TestConditionMembership(t *testing.T) {
	ctx := Context{"team": "core", "level": 3}

	c := Condition{Attribute: "team", Operator: OpIn, Value: []any{"core", "infra"}}
	if !c.Evaluate(ctx) {
		t.Fatal("in should hold")
	}
	c = Condition{Attribute: "team", Operator: OpIn, Value: []string{"growth"}}
	if c.Evaluate(ctx) {
		t.Fatal("in should fail for absent value")
	}
	c = Condition{Attribute: "team", Operator: OpNotIn, Value: []string{"growth"}}
	if !c.Evaluate(ctx) {
		t.Fatal("notIn should hold")
	}
	c = Condition{Attribute: "level", Operator: OpIn, Value: []int{1, 2, 3}}
	if !c.Evaluate(ctx) {
		t.Fatal("numeric in should hold")
	}
	// non-list value for a list operator
	c = Condition{Attribute: "team", Operator: OpIn, Value: "core"}
	if c.Evaluate(ctx) {
		t.Fatal("scalar value for in must be false")
	}
}

func TestConditionStringOperators(t *testing.T) {
	ctx := Context{"path": "reports/2026/q3.pdf", "n": 10}

	cases := []struct {
		op    Operator
		value any
		want  bool
	}{
		{OpStartsWith, "reports/", true},
		{OpStartsWith, "private/", false},
		{OpEndsWith, ".pdf", true},
		{OpEndsWith, ".csv", false},
		{OpContains, "2026", true},
		{OpContains, "2025", false},
	}
	for _, tc := range cases {
		c := Condition{Attribute: "path", Operator: tc.op, Value: tc.value}
		if got := c.Evaluate(ctx); got != tc.want {
			t.Fatalf("%s %v = %v, want %v", tc.op, tc.value, got, tc.want)
		}
	}

	// type mismatch: string operator against a number
	c := Condition{Attribute: "n", Operator: OpStartsWith, Value: "1"}
	if c.Evaluate(ctx) {
		t.Fatal("startsWith on a number must be false")
	}
}

func TestConditionComparisons(t *testing.T) {
	ctx := Context{"amount": 150, "name": "abc"}

	c := Condition{Attribute: "amount", Operator: OpGreaterThan, Value: 100}
	if !c.Evaluate(ctx) {
		t.Fatal("150 > 100 should hold")
	}
	c = Condition{Attribute: "amount", Operator: OpLessThan, Value: 100}
	if c.Evaluate(ctx) {
		t.Fatal("150 < 100 should fail")
	}
	c = Condition{Attribute: "amount", Operator: OpGreaterThan, Value: 99.5}
	if !c.Evaluate(ctx) {
		t.Fatal("mixed int/float comparison should hold")
	}
	// comparisons are numeric only
	c = Condition{Attribute: "name", Operator: OpGreaterThan, Value: "abb"}
	if c.Evaluate(ctx) {
		t.Fatal("string comparison must be false")
	}
}

func TestConditionUnknownOperator(t *testing.T) {
	ctx := Context{"role": "editor"}
	c := Condition{Attribute: "role", Operator: Operator("matches"), Value: "editor"}
	if c.Evaluate(ctx) {
		t.Fatal("unknown operator must evaluate to false")
	}
	if Operator("matches").Valid() {
		t.Fatal("unknown operator must not be valid")
	}
}

func TestEvaluateConditionsAnd(t *testing.T) {
	ctx := Context{"role": "editor", "amount": 50}

	conds := []Condition{
		{Attribute: "role", Operator: OpEquals, Value: "editor"},
		{Attribute: "amount", Operator: OpLessThan, Value: 100},
	}
	if !EvaluateConditions(conds, ctx) {
		t.Fatal("all conditions hold, expected true")
	}

	conds[1].Value = 10
	if EvaluateConditions(conds, ctx) {
		t.Fatal("one failing condition must fail the set")
	}

	if !EvaluateConditions(nil, ctx) {
		t.Fatal("empty condition list is unconditionally true")
	}
}
