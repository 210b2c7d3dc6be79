package benchmark

import (
	"context"
	"testing"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	authz "github.com/entgrid/authz"
	"github.com/entgrid/authz/logger"
	"github.com/entgrid/authz/stores"
)

func newBenchService(b *testing.B) (*authz.AuthorizationService, *stores.MemoryRoleStore, *stores.MemoryPolicyStore, *stores.MemoryRelationshipStore) {
	b.Helper()
	roleStore := stores.NewMemoryRoleStore()
	policyStore := stores.NewMemoryPolicyStore()
	relStore := stores.NewMemoryRelationshipStore()

	engines := []authz.AuthzEngine{
		authz.NewRbacEngine(roleStore, logger.NewNullLogger()),
		authz.NewAbacEngine(policyStore, logger.NewNullLogger()),
		authz.NewRebacEngine(relStore, 0, logger.NewNullLogger()),
	}
	svc := authz.NewAuthorizationService(engines,
		authz.WithServiceLogger(logger.NewNullLogger()),
	)
	return svc, roleStore, policyStore, relStore
}

func BenchmarkAuthorizeRBAC(b *testing.B) {
	svc, roleStore, _, _ := newBenchService(b)
	defer svc.Close()

	ctx := context.Background()
	_ = roleStore.CreateRole(ctx, &authz.Role{ID: "reader", Name: "Reader", Permissions: []string{"book:read"}})
	_ = roleStore.AssignRole(ctx, &authz.RoleAssignment{ID: "a1", SubjectID: "alice", SubjectType: authz.SubjectUser, RoleID: "reader"})

	ac := &authz.AuthorizationContext{
		SubjectID:    "alice",
		SubjectType:  authz.SubjectUser,
		ResourceID:   "book-1",
		ResourceType: "book",
		Action:       "read",
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = svc.Authorize(ctx, ac)
	}
}

func BenchmarkAuthorizeRelationship(b *testing.B) {
	svc, _, _, relStore := newBenchService(b)
	defer svc.Close()

	ctx := context.Background()
	_ = relStore.CreateRelationship(ctx, &authz.Relationship{
		ID:         "r1",
		SourceID:   "alice",
		SourceKind: authz.EntityUser,
		TargetID:   "doc-1",
		TargetKind: authz.EntityResource,
		Type:       authz.RelViewer,
	})

	ac := &authz.AuthorizationContext{
		SubjectID:    "alice",
		SubjectType:  authz.SubjectUser,
		ResourceID:   "doc-1",
		ResourceType: "document",
		Action:       "read",
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = svc.Authorize(ctx, ac)
	}
}

func BenchmarkCasbinRBAC(b *testing.B) {
	modelText := `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

	m, _ := model.NewModelFromString(modelText)
	e, _ := casbin.NewEnforcer(m)
	_, _ = e.AddPolicy("reader", "book", "read")
	_, _ = e.AddGroupingPolicy("alice", "reader")

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = e.Enforce("alice", "book", "read")
	}
}
