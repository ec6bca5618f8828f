package permit

import (
	"reflect"
	"strings"

	"github.com/oarkflow/permit/utils"
)

// Operator is the closed set of condition operators. Values arriving
// from untyped storage that are not in this set evaluate to false.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpIn          Operator = "in"
	OpNotIn       Operator = "notIn"
	OpStartsWith  Operator = "startsWith"
	OpEndsWith    Operator = "endsWith"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greaterThan"
	OpLessThan    Operator = "lessThan"
)

// Valid reports whether o is one of the known operators.
func (o Operator) Valid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpIn, OpNotIn,
		OpStartsWith, OpEndsWith, OpContains,
		OpGreaterThan, OpLessThan:
		return true
	}
	return false
}

// Condition is an attribute predicate attached to a grant. Attribute is
// a dotted path resolved against the check-time Context.
type Condition struct {
	Attribute string   `json:"attribute" yaml:"attribute"`
	Operator  Operator `json:"operator" yaml:"operator"`
	Value     any      `json:"value" yaml:"value"`
}

// Context is the key/value bag supplied at check time. The engine seeds
// it with the subject id and a timestamp; callers add whatever the
// grant conditions need.
type Context map[string]any

// EvaluateConditions reports whether every condition holds against the
// context (logical AND, short-circuiting on the first failure). An
// empty or nil list is unconditionally true.
func EvaluateConditions(conditions []Condition, ctx Context) bool {
	for _, c := range conditions {
		if !c.Evaluate(ctx) {
			return false
		}
	}
	return true
}

// Evaluate resolves the condition's attribute path and applies its
// operator. A missing or nil attribute value is false regardless of
// operator, and operator/value type mismatches are false rather than
// errors.
func (c Condition) Evaluate(ctx Context) bool {
	resolved, ok := utils.LookupPath(ctx, c.Attribute)
	if !ok {
		return false
	}
	switch c.Operator {
	case OpEquals:
		return valueEquals(resolved, c.Value)
	case OpNotEquals:
		return !valueEquals(resolved, c.Value)
	case OpIn:
		return valueIn(resolved, c.Value)
	case OpNotIn:
		list, ok := asList(c.Value)
		if !ok {
			return false
		}
		for _, item := range list {
			if valueEquals(resolved, item) {
				return false
			}
		}
		return true
	case OpStartsWith:
		a, b, ok := bothStrings(resolved, c.Value)
		return ok && strings.HasPrefix(a, b)
	case OpEndsWith:
		a, b, ok := bothStrings(resolved, c.Value)
		return ok && strings.HasSuffix(a, b)
	case OpContains:
		a, b, ok := bothStrings(resolved, c.Value)
		return ok && strings.Contains(a, b)
	case OpGreaterThan:
		a, b, ok := bothNumbers(resolved, c.Value)
		return ok && a > b
	case OpLessThan:
		a, b, ok := bothNumbers(resolved, c.Value)
		return ok && a < b
	}
	return false
}

// valueEquals compares two values. Numeric kinds are compared by value
// so ints decoded from Go literals equal floats decoded from JSON.
func valueEquals(a, b any) bool {
	if an, ok := asNumber(a); ok {
		bn, ok := asNumber(b)
		return ok && an == bn
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return reflect.DeepEqual(a, b)
}

func valueIn(resolved, listVal any) bool {
	list, ok := asList(listVal)
	if !ok {
		return false
	}
	for _, item := range list {
		if valueEquals(resolved, item) {
			return true
		}
	}
	return false
}

func asList(v any) ([]any, bool) {
	switch vv := v.(type) {
	case []any:
		return vv, true
	case []string:
		out := make([]any, len(vv))
		for i, s := range vv {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(vv))
		for i, n := range vv {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]any, len(vv))
		for i, n := range vv {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}

func bothStrings(a, b any) (string, string, bool) {
	as, ok := a.(string)
	if !ok {
		return "", "", false
	}
	bs, ok := b.(string)
	if !ok {
		return "", "", false
	}
	return as, bs, true
}

func bothNumbers(a, b any) (float64, float64, bool) {
	an, ok := asNumber(a)
	if !ok {
		return 0, 0, false
	}
	bn, ok := asNumber(b)
	if !ok {
		return 0, 0, false
	}
	return an, bn, true
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
