package stores

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/entgrid/authz"
)

// MemoryRoleStore holds roles and role assignments in process memory. It is
// the store of choice for tests, demos and single-node embedding.
type MemoryRoleStore struct {
	mu          sync.RWMutex
	roles       map[string]*authz.Role
	assignments map[string]*authz.RoleAssignment
}

func NewMemoryRoleStore() *MemoryRoleStore {
	return &MemoryRoleStore{
		roles:       make(map[string]*authz.Role),
		assignments: make(map[string]*authz.RoleAssignment),
	}
}

func (s *MemoryRoleStore) CreateRole(_ context.Context, r *authz.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	r.UpdatedAt = r.CreatedAt
	s.roles[r.ID] = r
	return nil
}

func (s *MemoryRoleStore) UpdateRole(_ context.Context, r *authz.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[r.ID]; !ok {
		return fmt.Errorf("role %s: %w", r.ID, authz.ErrNotFound)
	}
	r.UpdatedAt = time.Now()
	r.Version++
	s.roles[r.ID] = r
	return nil
}

func (s *MemoryRoleStore) DeleteRole(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles, id)
	return nil
}

func (s *MemoryRoleStore) AssignRole(_ context.Context, a *authz.RoleAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	s.assignments[a.ID] = a
	return nil
}

func (s *MemoryRoleStore) RevokeAssignment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assignments, id)
	return nil
}

func (s *MemoryRoleStore) RolesForSubject(_ context.Context, subjectID string, subjectType authz.SubjectType, tenantID string) ([]*authz.RoleAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*authz.RoleAssignment, 0)
	for _, a := range s.assignments {
		if a.SubjectID != subjectID {
			continue
		}
		if subjectType != "" && a.SubjectType != subjectType {
			continue
		}
		if !tenantMatches(a.TenantID, tenantID) {
			continue
		}
		if a.IsExpired() {
			continue
		}
		dup := *a
		out = append(out, &dup)
	}
	return out, nil
}

func (s *MemoryRoleStore) RoleByID(_ context.Context, id, tenantID string) (*authz.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok || !tenantMatches(r.TenantID, tenantID) {
		return nil, fmt.Errorf("role %s: %w", id, authz.ErrNotFound)
	}
	dup := *r
	return &dup, nil
}

func (s *MemoryRoleStore) ListRoles(_ context.Context, tenantID string) ([]*authz.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*authz.Role, 0)
	for _, r := range s.roles {
		if tenantMatches(r.TenantID, tenantID) {
			dup := *r
			out = append(out, &dup)
		}
	}
	return out, nil
}

// MemoryPolicyStore keeps attribute policies in memory with a version history
// per policy ID. Creation order is tracked so that readers see policies in a
// stable order rather than map-iteration order.
type MemoryPolicyStore struct {
	mu        sync.RWMutex
	policies  map[string]*authz.Policy
	order     []string
	histories map[string][]*authz.Policy
}

func NewMemoryPolicyStore() *MemoryPolicyStore {
	return &MemoryPolicyStore{
		policies:  make(map[string]*authz.Policy),
		histories: make(map[string][]*authz.Policy),
	}
}

func (s *MemoryPolicyStore) CreatePolicy(_ context.Context, p *authz.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.UpdatedAt = p.CreatedAt
	if _, exists := s.policies[p.ID]; !exists {
		s.order = append(s.order, p.ID)
	}
	s.policies[p.ID] = p
	return nil
}

func (s *MemoryPolicyStore) UpdatePolicy(_ context.Context, p *authz.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.policies[p.ID]; ok {
		dup := *old
		s.histories[p.ID] = append(s.histories[p.ID], &dup)
	} else {
		s.order = append(s.order, p.ID)
	}
	p.UpdatedAt = time.Now()
	p.Version++
	s.policies[p.ID] = p
	return nil
}

func (s *MemoryPolicyStore) DeletePolicy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[id]; !ok {
		return nil
	}
	delete(s.policies, id)
	for i, pid := range s.order {
		if pid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryPolicyStore) GetPolicy(_ context.Context, id string) (*authz.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[id]
	if !ok {
		return nil, fmt.Errorf("policy %s: %w", id, authz.ErrNotFound)
	}
	dup := *p
	return &dup, nil
}

func (s *MemoryPolicyStore) PolicyHistory(_ context.Context, id string) ([]*authz.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.histories[id]
	if !ok {
		return nil, fmt.Errorf("policy history %s: %w", id, authz.ErrNotFound)
	}
	return h, nil
}

// ApplicablePolicies returns the tenant's policies in creation order;
// resource, action and condition matching stays with the evaluation engine so
// that stores never reimplement pattern semantics. The stable order lets the
// engine break priority ties deterministically.
func (s *MemoryPolicyStore) ApplicablePolicies(_ context.Context, _, _, tenantID string) ([]*authz.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*authz.Policy, 0)
	for _, id := range s.order {
		p := s.policies[id]
		if tenantMatches(p.TenantID, tenantID) {
			dup := *p
			out = append(out, &dup)
		}
	}
	return out, nil
}

func (s *MemoryPolicyStore) ListPolicies(_ context.Context, tenantID string) ([]*authz.Policy, error) {
	return s.ApplicablePolicies(context.Background(), "", "", tenantID)
}

// MemoryRelationshipStore keeps the relationship graph and resource records
// in memory, indexed by source node for cheap BFS expansion.
type MemoryRelationshipStore struct {
	mu        sync.RWMutex
	rels      map[string]*authz.Relationship
	bySource  map[string][]string
	resources map[string]*authz.Resource
}

func NewMemoryRelationshipStore() *MemoryRelationshipStore {
	return &MemoryRelationshipStore{
		rels:      make(map[string]*authz.Relationship),
		bySource:  make(map[string][]string),
		resources: make(map[string]*authz.Resource),
	}
}

func (s *MemoryRelationshipStore) CreateRelationship(_ context.Context, rel *authz.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now()
	}
	if _, exists := s.rels[rel.ID]; !exists {
		s.bySource[rel.SourceID] = append(s.bySource[rel.SourceID], rel.ID)
	}
	s.rels[rel.ID] = rel
	return nil
}

func (s *MemoryRelationshipStore) DeleteRelationship(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rel, ok := s.rels[id]
	if !ok {
		return nil
	}
	delete(s.rels, id)
	ids := s.bySource[rel.SourceID]
	for i, rid := range ids {
		if rid == id {
			s.bySource[rel.SourceID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryRelationshipStore) RelationshipsBetween(_ context.Context, sourceID, targetID string, relType authz.RelationType, tenantID string) ([]*authz.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*authz.Relationship, 0)
	for _, id := range s.bySource[sourceID] {
		rel := s.rels[id]
		if rel.TargetID != targetID {
			continue
		}
		if relType != "" && rel.Type != relType {
			continue
		}
		if !tenantMatches(rel.TenantID, tenantID) {
			continue
		}
		if rel.IsExpired() {
			continue
		}
		dup := *rel
		out = append(out, &dup)
	}
	return out, nil
}

func (s *MemoryRelationshipStore) RelationshipsFrom(_ context.Context, sourceID, tenantID string) ([]*authz.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*authz.Relationship, 0)
	for _, id := range s.bySource[sourceID] {
		rel := s.rels[id]
		if !tenantMatches(rel.TenantID, tenantID) {
			continue
		}
		if rel.IsExpired() {
			continue
		}
		dup := *rel
		out = append(out, &dup)
	}
	return out, nil
}

func (s *MemoryRelationshipStore) CreateResource(_ context.Context, res *authz.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now()
	}
	s.resources[res.ID] = res
	return nil
}

func (s *MemoryRelationshipStore) DeleteResource(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.resources, id)
	return nil
}

func (s *MemoryRelationshipStore) ResourceByID(_ context.Context, id, tenantID string) (*authz.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.resources[id]
	if !ok || !tenantMatches(res.TenantID, tenantID) {
		return nil, fmt.Errorf("resource %s: %w", id, authz.ErrNotFound)
	}
	dup := *res
	return &dup, nil
}

// MemoryAuditStore buffers audit entries in memory.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	entries []*authz.AuditEntry
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{entries: make([]*authz.AuditEntry, 0)}
}

func (s *MemoryAuditStore) Record(_ context.Context, entry *authz.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryAuditStore) Query(_ context.Context, filter authz.AuditFilter) ([]*authz.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*authz.AuditEntry, 0)
	for _, entry := range s.entries {
		if !auditMatches(entry, filter) {
			continue
		}
		out = append(out, entry)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func auditMatches(entry *authz.AuditEntry, filter authz.AuditFilter) bool {
	if entry.Context == nil {
		return false
	}
	if filter.SubjectID != "" && entry.Context.SubjectID != filter.SubjectID {
		return false
	}
	if filter.ResourceID != "" && entry.Context.ResourceID != filter.ResourceID {
		return false
	}
	if filter.Action != "" && entry.Context.Action != filter.Action {
		return false
	}
	if filter.TenantID != "" && entry.Context.TenantID != filter.TenantID {
		return false
	}
	if !filter.StartTime.IsZero() && entry.Timestamp.Before(filter.StartTime) {
		return false
	}
	if !filter.EndTime.IsZero() && entry.Timestamp.After(filter.EndTime) {
		return false
	}
	return true
}
