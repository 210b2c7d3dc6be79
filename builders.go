package authz

import "time"

// Builders provide a fluent API for assembling policies, roles,
// relationships and authorization contexts.

// PolicyBuilder builds a Policy
type PolicyBuilder struct {
	p *Policy
}

func NewPolicyBuilder() *PolicyBuilder {
	return &PolicyBuilder{p: &Policy{Actions: []string{}, Resources: []string{}, Effect: EffectAllow, Enabled: true}}
}

func (b *PolicyBuilder) ID(id string) *PolicyBuilder    { b.p.ID = id; return b }
func (b *PolicyBuilder) Tenant(t string) *PolicyBuilder { b.p.TenantID = t; return b }
func (b *PolicyBuilder) Name(n string) *PolicyBuilder   { b.p.Name = n; return b }
func (b *PolicyBuilder) Effect(e Effect) *PolicyBuilder { b.p.Effect = e; return b }
func (b *PolicyBuilder) Actions(a ...string) *PolicyBuilder {
	b.p.Actions = append(b.p.Actions, a...)
	return b
}
func (b *PolicyBuilder) Resources(r ...string) *PolicyBuilder {
	b.p.Resources = append(b.p.Resources, r...)
	return b
}
func (b *PolicyBuilder) Subjects(s ...string) *PolicyBuilder {
	b.p.Subjects = append(b.p.Subjects, s...)
	return b
}
func (b *PolicyBuilder) Condition(key string, cond PolicyCondition) *PolicyBuilder {
	if b.p.Conditions == nil {
		b.p.Conditions = make(map[string]PolicyCondition)
	}
	b.p.Conditions[key] = cond
	return b
}
func (b *PolicyBuilder) Priority(p int) *PolicyBuilder       { b.p.Priority = p; return b }
func (b *PolicyBuilder) Enabled(enabled bool) *PolicyBuilder { b.p.Enabled = enabled; return b }
func (b *PolicyBuilder) Build() *Policy                      { return b.p }

// RoleBuilder builds a Role
type RoleBuilder struct {
	r *Role
}

func NewRoleBuilder() *RoleBuilder {
	return &RoleBuilder{r: &Role{Permissions: []string{}}}
}
func (b *RoleBuilder) ID(id string) *RoleBuilder    { b.r.ID = id; return b }
func (b *RoleBuilder) Tenant(t string) *RoleBuilder { b.r.TenantID = t; return b }
func (b *RoleBuilder) Name(n string) *RoleBuilder   { b.r.Name = n; return b }
func (b *RoleBuilder) Permissions(perms ...string) *RoleBuilder {
	b.r.Permissions = append(b.r.Permissions, perms...)
	return b
}

// Permission appends a single "resourceType:action" grant.
func (b *RoleBuilder) Permission(resourceType, action string) *RoleBuilder {
	b.r.Permissions = append(b.r.Permissions, resourceType+":"+action)
	return b
}
func (b *RoleBuilder) Parent(id string) *RoleBuilder { b.r.ParentID = id; return b }
func (b *RoleBuilder) Build() *Role                  { return b.r }

// RelationshipBuilder builds a Relationship
type RelationshipBuilder struct {
	rel *Relationship
}

func NewRelationshipBuilder() *RelationshipBuilder {
	return &RelationshipBuilder{rel: &Relationship{SourceKind: EntityUser, TargetKind: EntityResource}}
}
func (b *RelationshipBuilder) ID(id string) *RelationshipBuilder { b.rel.ID = id; return b }
func (b *RelationshipBuilder) Source(id string, kind EntityKind) *RelationshipBuilder {
	b.rel.SourceID = id
	b.rel.SourceKind = kind
	return b
}
func (b *RelationshipBuilder) Target(id string, kind EntityKind) *RelationshipBuilder {
	b.rel.TargetID = id
	b.rel.TargetKind = kind
	return b
}
func (b *RelationshipBuilder) Type(t RelationType) *RelationshipBuilder { b.rel.Type = t; return b }
func (b *RelationshipBuilder) Tenant(t string) *RelationshipBuilder     { b.rel.TenantID = t; return b }
func (b *RelationshipBuilder) ExpiresAt(t time.Time) *RelationshipBuilder {
	b.rel.ExpiresAt = t
	return b
}
func (b *RelationshipBuilder) Attribute(key string, value any) *RelationshipBuilder {
	if b.rel.Attributes == nil {
		b.rel.Attributes = make(map[string]any)
	}
	b.rel.Attributes[key] = value
	return b
}

// SharedActions sets the action list a SHARED_WITH relationship grants.
func (b *RelationshipBuilder) SharedActions(actions ...string) *RelationshipBuilder {
	return b.Attribute("permissions", actions)
}
func (b *RelationshipBuilder) Build() *Relationship { return b.rel }

// ContextBuilder builds an AuthorizationContext
type ContextBuilder struct {
	ac *AuthorizationContext
}

func NewContextBuilder() *ContextBuilder {
	return &ContextBuilder{ac: &AuthorizationContext{SubjectType: SubjectUser}}
}
func (b *ContextBuilder) Subject(id string) *ContextBuilder { b.ac.SubjectID = id; return b }
func (b *ContextBuilder) SubjectType(t SubjectType) *ContextBuilder {
	b.ac.SubjectType = t
	return b
}
func (b *ContextBuilder) Resource(id, resourceType string) *ContextBuilder {
	b.ac.ResourceID = id
	b.ac.ResourceType = resourceType
	return b
}
func (b *ContextBuilder) Action(a string) *ContextBuilder { b.ac.Action = a; return b }
func (b *ContextBuilder) Tenant(t string) *ContextBuilder { b.ac.TenantID = t; return b }
func (b *ContextBuilder) UserAttr(key string, value any) *ContextBuilder {
	if b.ac.UserAttrs == nil {
		b.ac.UserAttrs = make(map[string]any)
	}
	b.ac.UserAttrs[key] = value
	return b
}
func (b *ContextBuilder) ResourceAttr(key string, value any) *ContextBuilder {
	if b.ac.ResourceAttrs == nil {
		b.ac.ResourceAttrs = make(map[string]any)
	}
	b.ac.ResourceAttrs[key] = value
	return b
}
func (b *ContextBuilder) EnvAttr(key string, value any) *ContextBuilder {
	if b.ac.EnvAttrs == nil {
		b.ac.EnvAttrs = make(map[string]any)
	}
	b.ac.EnvAttrs[key] = value
	return b
}
func (b *ContextBuilder) Meta(key string, value any) *ContextBuilder {
	if b.ac.Metadata == nil {
		b.ac.Metadata = make(map[string]any)
	}
	b.ac.Metadata[key] = value
	return b
}
func (b *ContextBuilder) Build() *AuthorizationContext { return b.ac }
