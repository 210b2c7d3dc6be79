package authz

import (
	"context"
	"fmt"
	"time"
)

// AuthzEngine is the capability contract every reasoning engine satisfies.
// Supports is a cheap precheck; Authorize always returns a well-formed
// decision and never propagates an error past the engine boundary.
type AuthzEngine interface {
	Name() string
	Supports(ac *AuthorizationContext) bool
	Authorize(ctx context.Context, ac *AuthorizationContext) *Decision
}

func newAllow(start time.Time, reason string) *Decision {
	return &Decision{
		Allowed:        true,
		Kind:           KindAllow,
		Reason:         reason,
		EvaluationTime: time.Since(start),
		Timestamp:      start,
	}
}

func newDeny(start time.Time, kind DecisionKind, reason string) *Decision {
	return &Decision{
		Allowed:        false,
		Kind:           kind,
		Reason:         reason,
		EvaluationTime: time.Since(start),
		Timestamp:      start,
	}
}

// faultDecision converts an internal engine failure into an ordinary deny
// carrying the fault message, with evaluation time still recorded.
func faultDecision(start time.Time, engine string, err error) *Decision {
	return newDeny(start, KindNoGrant, fmt.Sprintf("%s evaluation failed: %v", engine, err))
}
