package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entgrid/authz/logger"
)

// RbacEngine grants access when any of the subject's roles (direct or
// inherited through the parent chain) holds a permission matching
// "resourceType:action".
type RbacEngine struct {
	roles  RoleStore
	logger logger.Logger
}

func NewRbacEngine(roles RoleStore, log logger.Logger) *RbacEngine {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &RbacEngine{roles: roles, logger: log}
}

func (e *RbacEngine) Name() string { return "rbac" }

// Supports is always true: every subject may hold roles.
func (e *RbacEngine) Supports(_ *AuthorizationContext) bool { return true }

func (e *RbacEngine) Authorize(ctx context.Context, ac *AuthorizationContext) *Decision {
	start := time.Now()
	dec, err := e.evaluate(ctx, ac, start)
	if err != nil {
		e.logger.Error("rbac evaluation fault", "subject", ac.SubjectID, "error", err.Error())
		return faultDecision(start, "rbac", err)
	}
	return dec
}

func (e *RbacEngine) evaluate(ctx context.Context, ac *AuthorizationContext, start time.Time) (*Decision, error) {
	assignments, err := e.roles.RolesForSubject(ctx, ac.SubjectID, ac.SubjectType, ac.TenantID)
	if err != nil {
		return nil, fmt.Errorf("fetch role assignments: %w", err)
	}
	active := assignments[:0:0]
	for _, a := range assignments {
		if !a.IsExpired() {
			active = append(active, a)
		}
	}
	if len(active) == 0 {
		return newDeny(start, KindNoGrant, "No roles assigned to subject"), nil
	}

	roleIDs := make([]string, 0, len(active))
	for _, a := range active {
		roleIDs = append(roleIDs, a.RoleID)

		perms, chain, err := e.effectivePermissions(ctx, a.RoleID, ac.TenantID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if perm := matchRequired(perms, ac.ResourceType, ac.Action); perm != "" {
			dec := newAllow(start, fmt.Sprintf("Permission %q granted via role %s", perm, a.RoleID))
			dec.AppliedRoles = chain
			dec.AppliedPermissions = []string{perm}
			return dec, nil
		}
	}
	return newDeny(start, KindNoGrant,
		"No matching permission found in roles: "+strings.Join(roleIDs, ", ")), nil
}

// effectivePermissions unions a role's permissions with those of its
// ancestors. The visited set guarantees termination when stored parent
// pointers form a cycle.
func (e *RbacEngine) effectivePermissions(ctx context.Context, roleID, tenantID string) ([]string, []string, error) {
	visited := make(map[string]bool)
	perms := make([]string, 0, 8)
	chain := make([]string, 0, 4)

	current := roleID
	for current != "" && !visited[current] {
		visited[current] = true
		role, err := e.roles.RoleByID(ctx, current, tenantID)
		if err != nil {
			if errors.Is(err, ErrNotFound) && current != roleID {
				// broken parent pointer: keep what we have
				break
			}
			return nil, nil, err
		}
		chain = append(chain, role.ID)
		perms = append(perms, role.Permissions...)
		current = role.ParentID
	}
	return perms, chain, nil
}

// matchRequired checks held permissions against "resourceType:action" in the
// fixed equivalence order: exact, "*:action", "resourceType:*", "*:*".
func matchRequired(perms []string, resourceType, action string) string {
	for _, candidate := range []string{
		resourceType + ":" + action,
		"*:" + action,
		resourceType + ":*",
		"*:*",
	} {
		for _, p := range perms {
			if p == candidate {
				return p
			}
		}
	}
	return ""
}
