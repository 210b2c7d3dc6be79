package authz

import (
	"time"
)

// ============================================================================
// DOMAIN OBJECTS
// ============================================================================

// SubjectType distinguishes the kind of principal requesting access
type SubjectType string

const (
	SubjectUser  SubjectType = "USER"
	SubjectGroup SubjectType = "GROUP"
)

// AuthorizationContext carries everything a single evaluation needs.
// It is built fresh by the caller and never mutated by the engines.
type AuthorizationContext struct {
	SubjectID     string         `json:"subject_id"`
	SubjectType   SubjectType    `json:"subject_type"`
	ResourceID    string         `json:"resource_id"`
	ResourceType  string         `json:"resource_type"`
	Action        string         `json:"action"`
	TenantID      string         `json:"tenant_id,omitempty"`
	UserAttrs     map[string]any `json:"user_attrs,omitempty"`
	ResourceAttrs map[string]any `json:"resource_attrs,omitempty"`
	EnvAttrs      map[string]any `json:"env_attrs,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// DecisionKind classifies the verdict so precedence never depends on
// parsing reason strings.
type DecisionKind string

const (
	KindAllow        DecisionKind = "allow"
	KindExplicitDeny DecisionKind = "explicit_deny"
	KindNoGrant      DecisionKind = "no_grant"
)

// Decision is the verdict produced by every engine and by the PDP.
// Never mutated after construction.
type Decision struct {
	Allowed            bool            `json:"allowed"`
	Kind               DecisionKind    `json:"kind"`
	Reason             string          `json:"reason"`
	AppliedPolicies    []string        `json:"applied_policies,omitempty"`
	AppliedRoles       []string        `json:"applied_roles,omitempty"`
	AppliedPermissions []string        `json:"applied_permissions,omitempty"`
	ConditionResults   map[string]bool `json:"condition_results,omitempty"`
	EvaluationTime     time.Duration   `json:"evaluation_time"`
	Cached             bool            `json:"cached"`
	Timestamp          time.Time       `json:"timestamp"`
}

// ============================================================================
// RBAC MODEL
// ============================================================================

// Role is a named collection of permission strings ("resource:action",
// wildcards allowed). ParentID forms a tree/forest; a cycle in stored data
// must not cause non-termination (engines guard with a visited set).
type Role struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id,omitempty"`
	Name        string    `json:"name"`
	Permissions []string  `json:"permissions"`
	ParentID    string    `json:"parent_id,omitempty"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RoleAssignment links a subject to a role, optionally until ExpiresAt.
type RoleAssignment struct {
	ID          string      `json:"id"`
	SubjectID   string      `json:"subject_id"`
	SubjectType SubjectType `json:"subject_type"`
	RoleID      string      `json:"role_id"`
	TenantID    string      `json:"tenant_id,omitempty"`
	ExpiresAt   time.Time   `json:"expires_at,omitempty"` // zero = no expiry
	CreatedAt   time.Time   `json:"created_at"`
}

// IsExpired reports whether the grant has ceased to be effective. A grant
// remains active through ExpiresAt itself and lapses strictly after it.
func (a *RoleAssignment) IsExpired() bool {
	return !a.ExpiresAt.IsZero() && time.Now().After(a.ExpiresAt)
}

// ============================================================================
// ABAC MODEL
// ============================================================================

// Effect is the outcome a policy prescribes when it matches
type Effect string

const (
	EffectAllow Effect = "ALLOW"
	EffectDeny  Effect = "DENY"
)

// ConditionOperator names the comparison applied by a PolicyCondition
type ConditionOperator string

const (
	OpEquals     ConditionOperator = "EQUALS"
	OpNotEquals  ConditionOperator = "NOT_EQUALS"
	OpIn         ConditionOperator = "IN"
	OpNotIn      ConditionOperator = "NOT_IN"
	OpGt         ConditionOperator = "GT"
	OpLt         ConditionOperator = "LT"
	OpGte        ConditionOperator = "GTE"
	OpLte        ConditionOperator = "LTE"
	OpContains   ConditionOperator = "CONTAINS"
	OpStartsWith ConditionOperator = "STARTS_WITH"
	OpEndsWith   ConditionOperator = "ENDS_WITH"
	OpRegex      ConditionOperator = "REGEX"
	OpExists     ConditionOperator = "EXISTS"
	OpNotExists  ConditionOperator = "NOT_EXISTS"
)

// PolicyCondition compares one dotted attribute path against a literal.
type PolicyCondition struct {
	Attribute string            `json:"attribute" yaml:"attribute"`
	Operator  ConditionOperator `json:"operator" yaml:"operator"`
	Value     any               `json:"value,omitempty" yaml:"value,omitempty"`
}

// Policy is a flat attribute-based rule. Disabled policies are invisible to
// evaluation. Higher priority evaluates first; ties keep storage order.
type Policy struct {
	ID         string                     `json:"id" yaml:"id"`
	TenantID   string                     `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`
	Name       string                     `json:"name" yaml:"name"`
	Effect     Effect                     `json:"effect" yaml:"effect"`
	Actions    []string                   `json:"actions" yaml:"actions"`
	Resources  []string                   `json:"resources" yaml:"resources"`
	Subjects   []string                   `json:"subjects,omitempty" yaml:"subjects,omitempty"`
	Conditions map[string]PolicyCondition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Priority   int                        `json:"priority" yaml:"priority"`
	Enabled    bool                       `json:"enabled" yaml:"enabled"`
	Version    int                        `json:"version" yaml:"version"`
	CreatedAt  time.Time                  `json:"created_at" yaml:"created_at,omitempty"`
	UpdatedAt  time.Time                  `json:"updated_at" yaml:"updated_at,omitempty"`
}

// ============================================================================
// ReBAC MODEL
// ============================================================================

// EntityKind classifies the endpoints of a relationship
type EntityKind string

const (
	EntityUser     EntityKind = "USER"
	EntityResource EntityKind = "RESOURCE"
	EntityGroup    EntityKind = "GROUP"
	EntityTenant   EntityKind = "TENANT"
)

// RelationType enumerates relationship semantics. OWNER through SHARED_WITH
// carry authorization meaning; the remaining types are social/structural and
// never imply a grant by themselves.
type RelationType string

const (
	RelOwner      RelationType = "OWNER"
	RelAdmin      RelationType = "ADMIN"
	RelEditor     RelationType = "EDITOR"
	RelViewer     RelationType = "VIEWER"
	RelSharedWith RelationType = "SHARED_WITH"
	RelMemberOf   RelationType = "MEMBER_OF"
	RelFollows    RelationType = "FOLLOWS"
	RelLinkedTo   RelationType = "LINKED_TO"
)

// Relationship is a directed edge between two entities.
type Relationship struct {
	ID         string         `json:"id"`
	SourceID   string         `json:"source_id"`
	SourceKind EntityKind     `json:"source_kind"`
	TargetID   string         `json:"target_id"`
	TargetKind EntityKind     `json:"target_kind"`
	Type       RelationType   `json:"type"`
	TenantID   string         `json:"tenant_id,omitempty"`
	ExpiresAt  time.Time      `json:"expires_at,omitempty"` // zero = no expiry
	Attributes map[string]any `json:"attributes,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// IsExpired reports whether the relationship has lapsed.
func (r *Relationship) IsExpired() bool {
	return !r.ExpiresAt.IsZero() && time.Now().After(r.ExpiresAt)
}

// SharedActions returns the explicit action list a SHARED_WITH relationship
// carries in its "permissions" attribute. Missing or malformed lists yield nil.
func (r *Relationship) SharedActions() []string {
	if r.Attributes == nil {
		return nil
	}
	switch v := r.Attributes["permissions"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Visibility of a resource
type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPrivate Visibility = "PRIVATE"
	VisibilityShared  Visibility = "SHARED"
)

// Resource is the protected object ReBAC ownership checks and ABAC resource
// attributes read from. ParentID forms an optional hierarchy.
type Resource struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	TenantID   string         `json:"tenant_id,omitempty"`
	OwnerID    string         `json:"owner_id"`
	ParentID   string         `json:"parent_id,omitempty"`
	Visibility Visibility     `json:"visibility"`
	Attributes map[string]any `json:"attributes,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// RelationshipPath is an ordered chain of relationships from a subject to a
// target plus its hop count. Produced transiently during graph search.
type RelationshipPath struct {
	Relationships []*Relationship `json:"relationships"`
	Distance      int             `json:"distance"`
}

// Last returns the final edge of the path, or nil for an empty path.
func (p *RelationshipPath) Last() *Relationship {
	if len(p.Relationships) == 0 {
		return nil
	}
	return p.Relationships[len(p.Relationships)-1]
}

// ============================================================================
// AUDIT
// ============================================================================

// AuditEntry records one authorization decision for the audit trail
type AuditEntry struct {
	ID        string                `json:"id"`
	Timestamp time.Time             `json:"timestamp"`
	Context   *AuthorizationContext `json:"context"`
	Decision  *Decision             `json:"decision"`
	RequestID string                `json:"request_id,omitempty"`
	IP        string                `json:"ip,omitempty"`
	UserAgent string                `json:"user_agent,omitempty"`
}

// AuditFilter narrows audit-log queries
type AuditFilter struct {
	SubjectID  string
	ResourceID string
	Action     string
	TenantID   string
	StartTime  time.Time
	EndTime    time.Time
	Limit      int
}
