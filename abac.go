package authz

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/entgrid/authz/logger"
	"github.com/entgrid/authz/utils"
)

// AbacEngine evaluates attribute-based policies in priority order against
// the user, resource and environment attributes of the request.
type AbacEngine struct {
	policies PolicyStore
	logger   logger.Logger
}

func NewAbacEngine(policies PolicyStore, log logger.Logger) *AbacEngine {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &AbacEngine{policies: policies, logger: log}
}

func (e *AbacEngine) Name() string { return "abac" }

// Supports is true only when the context carries attributes to reason over.
func (e *AbacEngine) Supports(ac *AuthorizationContext) bool {
	return len(ac.UserAttrs) > 0 || len(ac.ResourceAttrs) > 0 || len(ac.EnvAttrs) > 0
}

func (e *AbacEngine) Authorize(ctx context.Context, ac *AuthorizationContext) *Decision {
	start := time.Now()
	dec, err := e.evaluate(ctx, ac, start)
	if err != nil {
		e.logger.Error("abac evaluation fault", "subject", ac.SubjectID, "error", err.Error())
		return faultDecision(start, "abac", err)
	}
	return dec
}

func (e *AbacEngine) evaluate(ctx context.Context, ac *AuthorizationContext, start time.Time) (*Decision, error) {
	policies, err := e.policies.ApplicablePolicies(ctx, ac.ResourceType, ac.Action, ac.TenantID)
	if err != nil {
		return nil, fmt.Errorf("fetch policies: %w", err)
	}

	// stores return the whole tenant slice; applicability by resource and
	// action pattern is decided here so "no policy covers this resource" is
	// distinguishable from "policies exist but none grant"
	applicable := make([]*Policy, 0, len(policies))
	for _, p := range policies {
		if !matchAnyResource(p.Resources, ac.ResourceType, ac.ResourceID) {
			continue
		}
		if !matchAnyAction(p.Actions, ac.Action) {
			continue
		}
		applicable = append(applicable, p)
	}
	if len(applicable) == 0 {
		return newDeny(start, KindNoGrant, "No applicable policies found"), nil
	}

	// priority descending, ties keep storage order
	sort.SliceStable(applicable, func(i, j int) bool { return applicable[i].Priority > applicable[j].Priority })

	condResults := make(map[string]bool)

	for _, p := range applicable {
		if !p.Enabled {
			continue
		}
		if !matchSubject(p.Subjects, ac.SubjectID) {
			// subject mismatch skips the policy without recording it
			continue
		}

		matched := true
		for _, key := range sortedConditionKeys(p.Conditions) {
			ok := evaluateCondition(ac, p.Conditions[key])
			condResults[p.ID+"."+key] = ok
			if !ok {
				e.logger.Debug("policy condition unsatisfied", "policy", p.ID, "condition", key)
				matched = false
				break
			}
		}
		if !matched {
			continue
		}

		if p.Effect == EffectDeny {
			dec := newDeny(start, KindExplicitDeny,
				fmt.Sprintf("Policy %q denies %s on %s", p.Name, ac.Action, ac.ResourceType))
			dec.AppliedPolicies = []string{p.ID}
			dec.ConditionResults = condResults
			return dec, nil
		}
		dec := newAllow(start, fmt.Sprintf("Policy %q allows access", p.Name))
		dec.AppliedPolicies = []string{p.ID}
		dec.ConditionResults = condResults
		return dec, nil
	}

	dec := newDeny(start, KindNoGrant, "No matching policy allows access")
	dec.ConditionResults = condResults
	return dec, nil
}

func matchSubject(patterns []string, subjectID string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if p == "*" || p == subjectID {
			return true
		}
	}
	return false
}

func matchAnyResource(patterns []string, resourceType, resourceID string) bool {
	for _, p := range patterns {
		if utils.MatchTypedPattern(p, resourceType, resourceID) {
			return true
		}
	}
	return false
}

func matchAnyAction(patterns []string, action string) bool {
	for _, p := range patterns {
		if utils.MatchPattern(action, p) {
			return true
		}
	}
	return false
}

func sortedConditionKeys(conds map[string]PolicyCondition) []string {
	keys := make([]string, 0, len(conds))
	for k := range conds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ============================================================================
// ATTRIBUTE RESOLUTION & CONDITION EVALUATION
// ============================================================================

// resolveAttribute walks a dotted path. The first segment selects a
// namespace; later segments descend into nested map values, returning nil as
// soon as a segment is missing or the current value is not a map.
func resolveAttribute(ac *AuthorizationContext, path string) any {
	segments := strings.Split(path, ".")
	var current any
	switch segments[0] {
	case "user", "subject":
		current = anyMap(ac.UserAttrs)
	case "resource":
		current = anyMap(ac.ResourceAttrs)
	case "env", "environment":
		current = anyMap(ac.EnvAttrs)
	case "time":
		current = map[string]any{"current": time.Now().UnixMilli()}
	default:
		return nil
	}
	for _, seg := range segments[1:] {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return current
}

func anyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func evaluateCondition(ac *AuthorizationContext, cond PolicyCondition) bool {
	val := resolveAttribute(ac, cond.Attribute)

	switch cond.Operator {
	case OpExists:
		return val != nil
	case OpNotExists:
		return val == nil
	}
	if val == nil {
		// a missing attribute satisfies only the negative operators
		return cond.Operator == OpNotEquals || cond.Operator == OpNotIn
	}

	switch cond.Operator {
	case OpEquals:
		return compareValues(val, cond.Value) == 0
	case OpNotEquals:
		return compareValues(val, cond.Value) != 0
	case OpIn:
		list, ok := toList(cond.Value)
		if !ok {
			return false
		}
		for _, item := range list {
			if compareValues(val, item) == 0 {
				return true
			}
		}
		return false
	case OpNotIn:
		list, ok := toList(cond.Value)
		if !ok {
			return true
		}
		for _, item := range list {
			if compareValues(val, item) == 0 {
				return false
			}
		}
		return true
	case OpGt:
		return compareValues(val, cond.Value) > 0
	case OpLt:
		return compareValues(val, cond.Value) < 0
	case OpGte:
		return compareValues(val, cond.Value) >= 0
	case OpLte:
		return compareValues(val, cond.Value) <= 0
	case OpContains:
		if s, ok := val.(string); ok {
			return strings.Contains(s, fmt.Sprint(cond.Value))
		}
		if list, ok := toList(val); ok {
			for _, item := range list {
				if compareValues(item, cond.Value) == 0 {
					return true
				}
			}
		}
		return false
	case OpStartsWith:
		s, ok := val.(string)
		return ok && strings.HasPrefix(s, fmt.Sprint(cond.Value))
	case OpEndsWith:
		s, ok := val.(string)
		return ok && strings.HasSuffix(s, fmt.Sprint(cond.Value))
	case OpRegex:
		s, ok := val.(string)
		if !ok {
			return false
		}
		// full-string match, not a substring search
		re, err := regexp.Compile("^(?:" + fmt.Sprint(cond.Value) + ")$")
		if err != nil {
			return false
		}
		return re.MatchString(s)
	}
	return false
}

// compareValues orders two operands: both numeric compares as float64,
// both string compares lexically, anything else falls back to comparing
// string renderings.
func compareValues(a, b any) int {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af == bf:
				return 0
			case af < bf:
				return -1
			default:
				return 1
			}
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
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

func toList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}
