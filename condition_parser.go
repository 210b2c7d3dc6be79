package authz

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParseCondition parses a compact condition string into a PolicyCondition.
// Supported forms:
//
//	exists user.mfa_enrolled
//	not exists user.suspended_at
//	user.groups in ["eng", "ops"]
//	user.groups not in ["contractors"]
//	user.department == "engineering"
//	resource.level >= 3
//	user.email ends_with "@corp.example"
//	resource.path starts_with "/public/"
//	user.tags contains "beta"
//	user.region matches "eu-.*"
//
// Quoted values stay strings, bare numerics become float64, true/false
// become bools.
func ParseCondition(s string) (PolicyCondition, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PolicyCondition{}, fmt.Errorf("empty condition")
	}

	if rest, ok := strings.CutPrefix(s, "not exists "); ok {
		return PolicyCondition{Attribute: strings.TrimSpace(rest), Operator: OpNotExists}, nil
	}
	if rest, ok := strings.CutPrefix(s, "exists "); ok {
		return PolicyCondition{Attribute: strings.TrimSpace(rest), Operator: OpExists}, nil
	}

	if m := listRe.FindStringSubmatch(s); m != nil {
		op := OpIn
		if m[2] != "" {
			op = OpNotIn
		}
		items := splitCSV(m[3])
		vals := make([]any, 0, len(items))
		for _, item := range items {
			vals = append(vals, parseLiteral(item))
		}
		return PolicyCondition{Attribute: m[1], Operator: op, Value: vals}, nil
	}

	if m := binaryRe.FindStringSubmatch(s); m != nil {
		op, ok := binaryOps[m[2]]
		if !ok {
			return PolicyCondition{}, fmt.Errorf("unsupported operator %q", m[2])
		}
		return PolicyCondition{Attribute: m[1], Operator: op, Value: parseLiteral(m[3])}, nil
	}

	return PolicyCondition{}, fmt.Errorf("unsupported condition syntax: %s", s)
}

var (
	listRe   = regexp.MustCompile(`^([a-zA-Z0-9_.]+)\s+(not\s+)?in\s*\[([^\]]*)\]$`)
	binaryRe = regexp.MustCompile(`^([a-zA-Z0-9_.]+)\s*(==|!=|>=|<=|>|<|contains|starts_with|ends_with|matches)\s*(.+)$`)
)

var binaryOps = map[string]ConditionOperator{
	"==":          OpEquals,
	"!=":          OpNotEquals,
	">":           OpGt,
	"<":           OpLt,
	">=":          OpGte,
	"<=":          OpLte,
	"contains":    OpContains,
	"starts_with": OpStartsWith,
	"ends_with":   OpEndsWith,
	"matches":     OpRegex,
}

// parseLiteral interprets the right-hand side of a condition.
func parseLiteral(s string) any {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// splitCSV splits list items like `"a", "b"` or `a, b` (trimmed, unquoted at
// parseLiteral time).
func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
