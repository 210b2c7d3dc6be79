package authz

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist. Engines
// treat it as "no data", anything else as an evaluation fault.
var ErrNotFound = errors.New("not found")

// RoleStore supplies role data to the RBAC engine.
type RoleStore interface {
	// RolesForSubject returns the subject's active assignments, already
	// filtered for expiry, restricted to tenantID when non-empty.
	RolesForSubject(ctx context.Context, subjectID string, subjectType SubjectType, tenantID string) ([]*RoleAssignment, error)
	// RoleByID resolves a role; missing roles yield ErrNotFound.
	RoleByID(ctx context.Context, id, tenantID string) (*Role, error)
}

// PolicyStore supplies policy data to the ABAC engine.
type PolicyStore interface {
	// ApplicablePolicies returns the tenant's policies in stable creation
	// order, restricted to tenantID when non-empty. Resource/action pattern
	// matching stays with the engine, which sorts by priority and breaks
	// ties on the returned order.
	ApplicablePolicies(ctx context.Context, resourceType, action, tenantID string) ([]*Policy, error)
}

// RelationshipStore supplies graph data to the ReBAC engine.
type RelationshipStore interface {
	// RelationshipsBetween returns active relationships filtered by any
	// non-empty source/target/type arguments.
	RelationshipsBetween(ctx context.Context, sourceID, targetID string, relType RelationType, tenantID string) ([]*Relationship, error)
	// RelationshipsFrom returns active outgoing relationships of a node.
	RelationshipsFrom(ctx context.Context, sourceID, tenantID string) ([]*Relationship, error)
	// ResourceByID resolves a resource; missing resources yield ErrNotFound.
	ResourceByID(ctx context.Context, id, tenantID string) (*Resource, error)
}

// Cache is the shared decision cache: a plain get/put-with-TTL discipline.
// Implementations must be safe for concurrent readers and writers.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

// AuditSink receives decision records. Calls are fire-and-forget from the
// PDP's point of view; failures are logged, never propagated.
type AuditSink interface {
	Record(ctx context.Context, entry *AuditEntry) error
}
