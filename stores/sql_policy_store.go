package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/entgrid/authz"
	"github.com/oarkflow/squealx"
)

// SQLPolicyStore persists attribute policies in SQL. List-valued fields and
// the condition map live in JSON columns.
type SQLPolicyStore struct {
	db *squealx.DB
}

func NewSQLPolicyStore(db *squealx.DB) *SQLPolicyStore {
	return &SQLPolicyStore{db: db}
}

func (s *SQLPolicyStore) CreatePolicy(ctx context.Context, p *authz.Policy) error {
	actions, _ := json.Marshal(p.Actions)
	resources, _ := json.Marshal(p.Resources)
	subjects, _ := json.Marshal(p.Subjects)
	conditions, _ := json.Marshal(p.Conditions)
	q := `INSERT INTO policies(id, tenant_id, name, effect, actions_json, resources_json, subjects_json, conditions_json, priority, enabled, version, created_at, updated_at) VALUES(:id, :tenant_id, :name, :effect, :actions_json, :resources_json, :subjects_json, :conditions_json, :priority, :enabled, :version, :created_at, :updated_at)`
	now := time.Now()
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":              p.ID,
		"tenant_id":       p.TenantID,
		"name":            p.Name,
		"effect":          string(p.Effect),
		"actions_json":    string(actions),
		"resources_json":  string(resources),
		"subjects_json":   string(subjects),
		"conditions_json": string(conditions),
		"priority":        p.Priority,
		"enabled":         boolToInt(p.Enabled),
		"version":         p.Version,
		"created_at":      now,
		"updated_at":      now,
	})
	return err
}

func (s *SQLPolicyStore) UpdatePolicy(ctx context.Context, p *authz.Policy) error {
	actions, _ := json.Marshal(p.Actions)
	resources, _ := json.Marshal(p.Resources)
	subjects, _ := json.Marshal(p.Subjects)
	conditions, _ := json.Marshal(p.Conditions)
	q := `UPDATE policies SET tenant_id=:tenant_id, name=:name, effect=:effect, actions_json=:actions_json, resources_json=:resources_json, subjects_json=:subjects_json, conditions_json=:conditions_json, priority=:priority, enabled=:enabled, version=version+1, updated_at=:updated_at WHERE id=:id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":              p.ID,
		"tenant_id":       p.TenantID,
		"name":            p.Name,
		"effect":          string(p.Effect),
		"actions_json":    string(actions),
		"resources_json":  string(resources),
		"subjects_json":   string(subjects),
		"conditions_json": string(conditions),
		"priority":        p.Priority,
		"enabled":         boolToInt(p.Enabled),
		"updated_at":      time.Now(),
	})
	return err
}

func (s *SQLPolicyStore) DeletePolicy(ctx context.Context, id string) error {
	_, err := s.db.NamedExecContext(ctx, `DELETE FROM policies WHERE id = :id`, map[string]any{"id": id})
	return err
}

func (s *SQLPolicyStore) GetPolicy(ctx context.Context, id string) (*authz.Policy, error) {
	q := `SELECT id, tenant_id, name, effect, actions_json, resources_json, subjects_json, conditions_json, priority, enabled, version, created_at, updated_at FROM policies WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("policy %s: %w", id, authz.ErrNotFound)
	}
	return scanPolicy(r)
}

// ApplicablePolicies returns the tenant's policies ordered by priority and
// then creation; pattern matching against resource and action stays with the
// engine.
func (s *SQLPolicyStore) ApplicablePolicies(ctx context.Context, _, _, tenantID string) ([]*authz.Policy, error) {
	q := `SELECT id, tenant_id, name, effect, actions_json, resources_json, subjects_json, conditions_json, priority, enabled, version, created_at, updated_at FROM policies`
	params := map[string]any{}
	if tenantID != "" {
		q += ` WHERE tenant_id = :tenant_id OR tenant_id = ''`
		params["tenant_id"] = tenantID
	}
	q += ` ORDER BY priority DESC, created_at, id`
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*authz.Policy, 0)
	for r.Next() {
		p, err := scanPolicy(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *SQLPolicyStore) ListPolicies(ctx context.Context, tenantID string) ([]*authz.Policy, error) {
	return s.ApplicablePolicies(ctx, "", "", tenantID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(r rowScanner) (*authz.Policy, error) {
	var id, tenant, name, effect, actionsJSON, resourcesJSON, subjectsJSON, conditionsJSON string
	var priority, enabled, version int
	var createdRaw, updatedRaw interface{}
	if err := r.Scan(&id, &tenant, &name, &effect, &actionsJSON, &resourcesJSON, &subjectsJSON, &conditionsJSON, &priority, &enabled, &version, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	p := &authz.Policy{
		ID:        id,
		TenantID:  tenant,
		Name:      name,
		Effect:    authz.Effect(effect),
		Priority:  priority,
		Enabled:   enabled != 0,
		Version:   version,
		CreatedAt: scanTime(createdRaw),
		UpdatedAt: scanTime(updatedRaw),
	}
	_ = json.Unmarshal([]byte(actionsJSON), &p.Actions)
	_ = json.Unmarshal([]byte(resourcesJSON), &p.Resources)
	_ = json.Unmarshal([]byte(subjectsJSON), &p.Subjects)
	_ = json.Unmarshal([]byte(conditionsJSON), &p.Conditions)
	return p, nil
}
