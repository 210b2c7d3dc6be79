package authz_test

import (
	"context"
	"strings"
	"testing"

	"github.com/entgrid/authz"
	"github.com/entgrid/authz/stores"
)

func sampleConfig() *authz.Config {
	return authz.NewConfigBuilder().
		Version(3).
		AddRole(&authz.Role{ID: "viewer", Name: "Viewer", Permissions: []string{"document:read"}}).
		AddRole(&authz.Role{ID: "editor", Name: "Editor", Permissions: []string{"document:write"}, ParentID: "viewer"}).
		Assign("a1", "alice", "editor", "acme").
		AddPolicy(authz.NewPolicyBuilder().ID("p1").Name("eng-read").
			Actions("read").Resources("document:*").
			Condition("dept", authz.PolicyCondition{
				Attribute: "user.department", Operator: authz.OpEquals, Value: "engineering",
			}).Priority(10).Build()).
		AddRelationship(authz.NewRelationshipBuilder().ID("r1").
			Source("bob", authz.EntityUser).Target("doc-2", authz.EntityResource).
			Type(authz.RelOwner).Build()).
		AddResource(&authz.Resource{ID: "doc-2", Type: "document", OwnerID: "bob"}).
		EngineSettings(func(e *authz.EngineConfig) {
			e.DecisionCacheTTL = 30000
			e.MaxRelationshipDepth = 4
		}).
		ConditionSettings(func(c *authz.ConditionConfig) {
			c.BusinessHoursStart = 8
			c.BusinessHoursEnd = 18
			c.AllowedIPRanges = []string{"10.0.0.0/8"}
		}).
		Build()
}

func TestConfigYAMLRoundtrip(t *testing.T) {
	cfg := sampleConfig()
	data, err := cfg.ToYAML()
	if err != nil {
		t.Fatalf("to yaml: %v", err)
	}

	loaded, err := authz.NewConfigLoader().LoadYAML(data)
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if loaded.Version != 3 {
		t.Fatalf("version = %d, want 3", loaded.Version)
	}
	if len(loaded.Roles) != 2 || loaded.Roles[1].ParentID != "viewer" {
		t.Fatalf("roles not preserved: %+v", loaded.Roles)
	}
	if len(loaded.Policies) != 1 || loaded.Policies[0].Conditions["dept"].Operator != authz.OpEquals {
		t.Fatalf("policy conditions not preserved: %+v", loaded.Policies)
	}
	if loaded.Engine.CacheTTL().Milliseconds() != 30000 {
		t.Fatalf("engine ttl = %v", loaded.Engine.CacheTTL())
	}
}

func TestConfigJSONRoundtrip(t *testing.T) {
	cfg := sampleConfig()
	data, err := cfg.ToJSON()
	if err != nil {
		t.Fatalf("to json: %v", err)
	}
	loaded, err := authz.NewConfigLoader().LoadJSON(data)
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	if len(loaded.Assignments) != 1 || loaded.Assignments[0].SubjectID != "alice" {
		t.Fatalf("assignments not preserved: %+v", loaded.Assignments)
	}
	if loaded.Conditions.BusinessHoursEnd != 18 {
		t.Fatalf("condition config not preserved: %+v", loaded.Conditions)
	}
}

func TestConfigBinaryRoundtrip(t *testing.T) {
	cfg := sampleConfig()
	data, err := authz.EncodeBinaryConfig(cfg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	loaded, err := authz.NewConfigLoader().LoadBinary(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if loaded.Version != cfg.Version {
		t.Fatalf("version = %d, want %d", loaded.Version, cfg.Version)
	}
	if len(loaded.Roles) != 2 || loaded.Roles[0].Permissions[0] != "document:read" {
		t.Fatalf("roles not preserved: %+v", loaded.Roles)
	}
	if len(loaded.Policies) != 1 {
		t.Fatalf("policies not preserved: %+v", loaded.Policies)
	}
	p := loaded.Policies[0]
	if p.Effect != authz.EffectAllow || !p.Enabled || p.Priority != 10 {
		t.Fatalf("policy scalar fields lost: %+v", p)
	}
	if p.Conditions["dept"].Attribute != "user.department" {
		t.Fatalf("policy conditions lost: %+v", p.Conditions)
	}
	if len(loaded.Relationships) != 1 || loaded.Relationships[0].Type != authz.RelOwner {
		t.Fatalf("relationships not preserved: %+v", loaded.Relationships)
	}
	if len(loaded.Resources) != 1 || loaded.Resources[0].OwnerID != "bob" {
		t.Fatalf("resources not preserved: %+v", loaded.Resources)
	}
	if loaded.Engine.MaxRelationshipDepth != 4 {
		t.Fatalf("engine config lost: %+v", loaded.Engine)
	}
	if len(loaded.Conditions.AllowedIPRanges) != 1 {
		t.Fatalf("condition config lost: %+v", loaded.Conditions)
	}
}

func TestConfigBinaryRejectsGarbage(t *testing.T) {
	if _, err := authz.NewConfigLoader().LoadBinary([]byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x00}); err == nil {
		t.Fatal("expected bad magic to fail")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := sampleConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name    string
		mutate  func(*authz.Config)
		wantErr string
	}{
		{"duplicate role", func(c *authz.Config) {
			c.Roles = append(c.Roles, &authz.Role{ID: "viewer", Name: "Dup"})
		}, "duplicate role"},
		{"unknown parent", func(c *authz.Config) {
			c.Roles[1].ParentID = "missing"
		}, "unknown parent"},
		{"assignment to unknown role", func(c *authz.Config) {
			c.Assignments[0].RoleID = "missing"
		}, "unknown role"},
		{"bad effect", func(c *authz.Config) {
			c.Policies[0].Effect = "MAYBE"
		}, "invalid effect"},
		{"policy without actions", func(c *authz.Config) {
			c.Policies[0].Actions = nil
		}, "at least one action"},
		{"condition without attribute", func(c *authz.Config) {
			c.Policies[0].Conditions["dept"] = authz.PolicyCondition{Operator: authz.OpEquals}
		}, "empty attribute"},
		{"bad operator", func(c *authz.Config) {
			c.Policies[0].Conditions["dept"] = authz.PolicyCondition{Attribute: "x", Operator: "SOUNDS_LIKE"}
		}, "invalid operator"},
		{"relationship without type", func(c *authz.Config) {
			c.Relationships[0].Type = ""
		}, "missing type"},
	}
	for _, tc := range cases {
		cfg := sampleConfig()
		tc.mutate(cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.wantErr) {
			t.Fatalf("%s: error %q does not mention %q", tc.name, err, tc.wantErr)
		}
	}
}

func TestConfigApplySeedsStores(t *testing.T) {
	cfg := sampleConfig()
	ctx := context.Background()

	roleStore := stores.NewMemoryRoleStore()
	policyStore := stores.NewMemoryPolicyStore()
	relStore := stores.NewMemoryRelationshipStore()
	if err := cfg.Apply(ctx, roleStore, policyStore, relStore); err != nil {
		t.Fatalf("apply: %v", err)
	}

	svc := authz.NewAuthorizationService([]authz.AuthzEngine{
		authz.NewRbacEngine(roleStore, nil),
		authz.NewAbacEngine(policyStore, nil),
		authz.NewRebacEngine(relStore, cfg.Engine.MaxRelationshipDepth, nil),
	}, authz.WithCacheTTL(cfg.Engine.CacheTTL()))
	defer svc.Close()

	// rbac path, inherited through editor -> viewer, tenant-scoped
	ac := authz.NewContextBuilder().Subject("alice").Resource("doc-1", "document").
		Action("read").Tenant("acme").Build()
	if dec := svc.Authorize(ctx, ac); !dec.Allowed {
		t.Fatalf("seeded rbac: %s", dec.Reason)
	}

	// rebac ownership path
	ac = authz.NewContextBuilder().Subject("bob").Resource("doc-2", "document").Action("delete").Build()
	if dec := svc.Authorize(ctx, ac); !dec.Allowed {
		t.Fatalf("seeded rebac: %s", dec.Reason)
	}

	// abac path
	ac = authz.NewContextBuilder().Subject("carol").Resource("doc-3", "document").
		Action("read").UserAttr("department", "engineering").Build()
	if dec := svc.Authorize(ctx, ac); !dec.Allowed {
		t.Fatalf("seeded abac: %s", dec.Reason)
	}
}

func TestConfigApplyNilWritersSkip(t *testing.T) {
	cfg := sampleConfig()
	if err := cfg.Apply(context.Background(), nil, nil, nil); err != nil {
		t.Fatalf("apply with nil writers: %v", err)
	}
}
