package permit

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParseConditions parses an "&&"-joined condition string into the native
// Condition list used by grants. Each clause is "attribute op value"; list
// operators take a bracketed value like [a, b, c]. Parsing intentionally
// supports the commonly used patterns while staying simple and
// deterministic.
func ParseConditions(s string) ([]Condition, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	clauses := strings.Split(s, "&&")
	out := make([]Condition, 0, len(clauses))
	for _, clause := range clauses {
		cond, err := ParseCondition(clause)
		if err != nil {
			return nil, err
		}
		out = append(out, cond)
	}
	return out, nil
}

var (
	symbolicCondRe = regexp.MustCompile(`^([a-zA-Z0-9_\.]+)\s*(==|!=|>|<)\s*(.+)$`)
	wordCondRe     = regexp.MustCompile(`^([a-zA-Z0-9_\.]+)\s+(in|notIn|not_in|startsWith|starts_with|endsWith|ends_with|contains)\s+(.+)$`)
)

// ParseCondition parses a single clause like `subject.role == "editor"`,
// `request.amount > 100` or `subject.team in [core, infra]`.
func ParseCondition(s string) (Condition, error) {
	s = strings.TrimSpace(s)

	if m := symbolicCondRe.FindStringSubmatch(s); len(m) == 4 {
		op, err := symbolicOperator(m[2])
		if err != nil {
			return Condition{}, err
		}
		return Condition{Attribute: m[1], Operator: op, Value: parseValue(m[3])}, nil
	}

	if m := wordCondRe.FindStringSubmatch(s); len(m) == 4 {
		op, err := wordOperator(m[2])
		if err != nil {
			return Condition{}, err
		}
		if op == OpIn || op == OpNotIn {
			list, err := parseList(m[3])
			if err != nil {
				return Condition{}, fmt.Errorf("%s: %w", s, err)
			}
			return Condition{Attribute: m[1], Operator: op, Value: list}, nil
		}
		return Condition{Attribute: m[1], Operator: op, Value: parseValue(m[3])}, nil
	}

	return Condition{}, fmt.Errorf("unsupported condition syntax: %s", s)
}

func symbolicOperator(sym string) (Operator, error) {
	switch sym {
	case "==":
		return OpEquals, nil
	case "!=":
		return OpNotEquals, nil
	case ">":
		return OpGreaterThan, nil
	case "<":
		return OpLessThan, nil
	}
	return "", fmt.Errorf("unknown operator: %s", sym)
}

func wordOperator(word string) (Operator, error) {
	switch word {
	case "in":
		return OpIn, nil
	case "notIn", "not_in":
		return OpNotIn, nil
	case "startsWith", "starts_with":
		return OpStartsWith, nil
	case "endsWith", "ends_with":
		return OpEndsWith, nil
	case "contains":
		return OpContains, nil
	}
	return "", fmt.Errorf("unknown operator: %s", word)
}

// parseValue unquotes strings and recognizes numeric and boolean
// literals so comparisons behave the way the author wrote them.
func parseValue(s string) any {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

func parseList(s string) ([]any, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("expected bracketed list, got %s", s)
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return []any{}, nil
	}
	parts := strings.Split(inner, ",")
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		out = append(out, parseValue(p))
	}
	return out, nil
}
