package authz_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/entgrid/authz"
	"github.com/entgrid/authz/stores"
)

// failingRoleStore simulates a storage outage for fault-path tests.
type failingRoleStore struct{}

func (failingRoleStore) RolesForSubject(context.Context, string, authz.SubjectType, string) ([]*authz.RoleAssignment, error) {
	return nil, errors.New("db down")
}

func (failingRoleStore) RoleByID(context.Context, string, string) (*authz.Role, error) {
	return nil, errors.New("db down")
}

func newRbacService(t *testing.T, opts ...authz.ServiceOption) (*authz.AuthorizationService, *stores.MemoryRoleStore) {
	t.Helper()
	roleStore := stores.NewMemoryRoleStore()
	seedRole(t, roleStore, &authz.Role{ID: "viewer", Name: "Viewer", Permissions: []string{"document:read"}})
	seedAssignment(t, roleStore, &authz.RoleAssignment{
		ID: "a1", SubjectID: "alice", SubjectType: authz.SubjectUser, RoleID: "viewer",
	})
	svc := authz.NewAuthorizationService(
		[]authz.AuthzEngine{authz.NewRbacEngine(roleStore, nil)}, opts...)
	t.Cleanup(svc.Close)
	return svc, roleStore
}

func readRequest(subject string) *authz.AuthorizationContext {
	return authz.NewContextBuilder().Subject(subject).
		Resource("doc-1", "document").Action("read").Build()
}

func TestServiceAuthorizeAndCache(t *testing.T) {
	svc, _ := newRbacService(t)
	ctx := context.Background()

	first := svc.Authorize(ctx, readRequest("alice"))
	if !first.Allowed || first.Cached {
		t.Fatalf("first call: allowed=%v cached=%v (%s)", first.Allowed, first.Cached, first.Reason)
	}

	second := svc.Authorize(ctx, readRequest("alice"))
	if !second.Allowed {
		t.Fatalf("second call: expected allow, got %s", second.Reason)
	}
	if !second.Cached {
		t.Fatal("second call should come from the cache")
	}
	if second.Reason != "Cached decision" {
		t.Fatalf("unexpected cached reason: %s", second.Reason)
	}
	if second.Kind != authz.KindAllow {
		t.Fatalf("unexpected cached kind: %s", second.Kind)
	}
}

func TestServiceCachesDenials(t *testing.T) {
	svc, _ := newRbacService(t)
	ctx := context.Background()

	first := svc.Authorize(ctx, readRequest("mallory"))
	if first.Allowed {
		t.Fatal("expected deny")
	}
	second := svc.Authorize(ctx, readRequest("mallory"))
	if second.Allowed || !second.Cached {
		t.Fatalf("expected cached deny, got allowed=%v cached=%v", second.Allowed, second.Cached)
	}
	if second.Kind != authz.KindNoGrant {
		t.Fatalf("unexpected cached kind: %s", second.Kind)
	}
}

func TestServiceCacheKeySeparatesTenants(t *testing.T) {
	roleStore := stores.NewMemoryRoleStore()
	seedRole(t, roleStore, &authz.Role{ID: "viewer", TenantID: "t1", Name: "Viewer", Permissions: []string{"document:read"}})
	seedAssignment(t, roleStore, &authz.RoleAssignment{
		ID: "a1", SubjectID: "alice", SubjectType: authz.SubjectUser, RoleID: "viewer", TenantID: "t1",
	})
	svc := authz.NewAuthorizationService([]authz.AuthzEngine{authz.NewRbacEngine(roleStore, nil)})
	defer svc.Close()
	ctx := context.Background()

	inTenant := authz.NewContextBuilder().Subject("alice").Resource("doc-1", "document").
		Action("read").Tenant("t1").Build()
	otherTenant := authz.NewContextBuilder().Subject("alice").Resource("doc-1", "document").
		Action("read").Tenant("t2").Build()

	if dec := svc.Authorize(ctx, inTenant); !dec.Allowed {
		t.Fatalf("tenant t1: expected allow, got %s", dec.Reason)
	}
	if dec := svc.Authorize(ctx, otherTenant); dec.Allowed {
		t.Fatal("tenant t2 must not see the t1 cache entry")
	}
}

func TestServiceExplicitDenyWinsAcrossEngines(t *testing.T) {
	roleStore := stores.NewMemoryRoleStore()
	seedRole(t, roleStore, &authz.Role{ID: "admin", Name: "Admin", Permissions: []string{"*:*"}})
	seedAssignment(t, roleStore, &authz.RoleAssignment{
		ID: "a1", SubjectID: "eve", SubjectType: authz.SubjectUser, RoleID: "admin",
	})
	policyStore := stores.NewMemoryPolicyStore()
	seedPolicy(t, policyStore, authz.NewPolicyBuilder().
		ID("p-deny").Name("hard-ban").Effect(authz.EffectDeny).
		Actions("*").Resources("*").Subjects("eve").Priority(100).Build())

	svc := authz.NewAuthorizationService([]authz.AuthzEngine{
		authz.NewRbacEngine(roleStore, nil),
		authz.NewAbacEngine(policyStore, nil),
	})
	defer svc.Close()

	ac := authz.NewContextBuilder().Subject("eve").Resource("doc-1", "document").
		Action("read").UserAttr("flagged", true).Build()
	dec := svc.Authorize(context.Background(), ac)
	if dec.Allowed {
		t.Fatal("explicit deny must override the rbac allow")
	}
	if dec.Kind != authz.KindExplicitDeny {
		t.Fatalf("unexpected kind: %s", dec.Kind)
	}
	// applied ids are the union across engines, winner or not
	if len(dec.AppliedRoles) == 0 || dec.AppliedRoles[0] != "admin" {
		t.Fatalf("expected rbac applied roles in merged decision, got %v", dec.AppliedRoles)
	}
	if len(dec.AppliedPolicies) == 0 || dec.AppliedPolicies[0] != "p-deny" {
		t.Fatalf("expected deny policy in merged decision, got %v", dec.AppliedPolicies)
	}
}

func TestServiceNoApplicableEngines(t *testing.T) {
	// abac alone does not support an attribute-free context
	svc := authz.NewAuthorizationService([]authz.AuthzEngine{
		authz.NewAbacEngine(stores.NewMemoryPolicyStore(), nil),
	})
	defer svc.Close()

	dec := svc.Authorize(context.Background(), readRequest("alice"))
	if dec.Allowed {
		t.Fatal("expected deny")
	}
	if dec.Reason != "No applicable authorization engines" {
		t.Fatalf("unexpected reason: %s", dec.Reason)
	}

	// the structural deny is not cached; adding attributes changes the answer
	dec = svc.Authorize(context.Background(), readRequest("alice"))
	if dec.Cached {
		t.Fatal("no-engine deny must not be served from cache")
	}
}

func TestServiceConditionGate(t *testing.T) {
	svc, _ := newRbacService(t)
	ctx := context.Background()

	gated := authz.NewContextBuilder().Subject("alice").Resource("doc-1", "document").
		Action("read").EnvAttr("businessHoursOnly", true).EnvAttr("currentHour", 22).Build()
	dec := svc.Authorize(ctx, gated)
	if dec.Allowed {
		t.Fatal("expected environmental deny")
	}
	if dec.Reason != "Request outside business hours" {
		t.Fatalf("unexpected reason: %s", dec.Reason)
	}

	// the veto is never cached: the same subject inside hours is allowed
	open := authz.NewContextBuilder().Subject("alice").Resource("doc-1", "document").
		Action("read").EnvAttr("businessHoursOnly", true).EnvAttr("currentHour", 10).Build()
	if dec := svc.Authorize(ctx, open); !dec.Allowed {
		t.Fatalf("expected allow inside hours, got %s", dec.Reason)
	}
}

func TestServiceEvaluateContextConditions(t *testing.T) {
	svc, _ := newRbacService(t)
	ok := svc.EvaluateContextConditions(authz.NewContextBuilder().Subject("alice").
		Resource("doc-1", "document").Action("read").
		EnvAttr("requireVpn", true).Build())
	if ok {
		t.Fatal("expected condition pre-check to fail")
	}
}

func TestServiceNeverThrows(t *testing.T) {
	svc := authz.NewAuthorizationService([]authz.AuthzEngine{
		authz.NewRbacEngine(failingRoleStore{}, nil),
	})
	defer svc.Close()

	dec := svc.Authorize(context.Background(), readRequest("alice"))
	if dec.Allowed {
		t.Fatal("storage faults must deny")
	}
	if !strings.HasPrefix(dec.Reason, "rbac evaluation failed:") {
		t.Fatalf("unexpected fault reason: %s", dec.Reason)
	}
}

func TestServiceAuthorizeBulk(t *testing.T) {
	svc, _ := newRbacService(t)
	reqs := []*authz.AuthorizationContext{
		readRequest("alice"),
		readRequest("mallory"),
		readRequest("alice"),
	}
	out := svc.AuthorizeBulk(context.Background(), reqs)
	if len(out) != len(reqs) {
		t.Fatalf("expected %d decisions, got %d", len(reqs), len(out))
	}
	if !out[0].Allowed || out[1].Allowed || !out[2].Allowed {
		t.Fatalf("unexpected verdicts: %v %v %v", out[0].Allowed, out[1].Allowed, out[2].Allowed)
	}
	if !out[2].Cached {
		t.Fatal("repeat request inside a batch should hit the cache")
	}
}

func TestServiceExplainBypassesCache(t *testing.T) {
	svc, roleStore := newRbacService(t)
	ctx := context.Background()

	// warm the cache with an allow, then revoke and explain
	if dec := svc.Authorize(ctx, readRequest("alice")); !dec.Allowed {
		t.Fatalf("warmup failed: %s", dec.Reason)
	}
	if err := roleStore.RevokeAssignment(ctx, "a1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	combined, perEngine := svc.Explain(ctx, readRequest("alice"))
	if combined.Allowed {
		t.Fatal("explain must reflect live state, not the cache")
	}
	rbacDec, ok := perEngine["rbac"]
	if !ok {
		t.Fatalf("expected per-engine rbac decision, got %v", perEngine)
	}
	if rbacDec.Reason != "No roles assigned to subject" {
		t.Fatalf("unexpected rbac reason: %s", rbacDec.Reason)
	}

	// and the cached allow is still served to Authorize
	if dec := svc.Authorize(ctx, readRequest("alice")); !dec.Cached {
		t.Fatal("explain must not overwrite the cached decision")
	}
}

func TestServiceAuditTrail(t *testing.T) {
	auditStore := stores.NewMemoryAuditStore()
	roleStore := stores.NewMemoryRoleStore()
	seedRole(t, roleStore, &authz.Role{ID: "viewer", Name: "Viewer", Permissions: []string{"document:read"}})
	seedAssignment(t, roleStore, &authz.RoleAssignment{
		ID: "a1", SubjectID: "alice", SubjectType: authz.SubjectUser, RoleID: "viewer",
	})
	svc := authz.NewAuthorizationService(
		[]authz.AuthzEngine{authz.NewRbacEngine(roleStore, nil)},
		authz.WithAuditSink(auditStore),
	)

	ac := authz.NewContextBuilder().Subject("alice").Resource("doc-1", "document").
		Action("read").EnvAttr("clientIp", "10.0.0.5").
		Meta("requestId", "req-42").Meta("userAgent", "curl/8").Build()
	if dec := svc.Authorize(context.Background(), ac); !dec.Allowed {
		t.Fatalf("expected allow, got %s", dec.Reason)
	}
	svc.Close() // drains the audit queue

	entries, err := auditStore.Query(context.Background(), authz.AuditFilter{SubjectID: "alice"})
	if err != nil {
		t.Fatalf("query audit: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(entries))
	}
	e := entries[0]
	if e.ID == "" || !e.Decision.Allowed || e.Context.ResourceID != "doc-1" {
		t.Fatalf("malformed audit entry: %+v", e)
	}
	if e.RequestID != "req-42" || e.IP != "10.0.0.5" || e.UserAgent != "curl/8" {
		t.Fatalf("request metadata not captured: %+v", e)
	}
}

func TestServiceCacheTTLExpiry(t *testing.T) {
	svc, roleStore := newRbacService(t, authz.WithCacheTTL(20*time.Millisecond))
	ctx := context.Background()

	if dec := svc.Authorize(ctx, readRequest("alice")); !dec.Allowed {
		t.Fatalf("warmup failed: %s", dec.Reason)
	}
	if err := roleStore.RevokeAssignment(ctx, "a1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	time.Sleep(40 * time.Millisecond)

	dec := svc.Authorize(ctx, readRequest("alice"))
	if dec.Cached {
		t.Fatal("expired entry must not be served")
	}
	if dec.Allowed {
		t.Fatal("revocation must take effect after TTL expiry")
	}
}
