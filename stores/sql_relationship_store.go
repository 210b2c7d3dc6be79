package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/entgrid/authz"
	"github.com/oarkflow/squealx"
)

// SQLRelationshipStore persists the relationship graph and resource records
// in SQL (squealx).
type SQLRelationshipStore struct {
	db *squealx.DB
}

func NewSQLRelationshipStore(db *squealx.DB) *SQLRelationshipStore {
	return &SQLRelationshipStore{db: db}
}

func (s *SQLRelationshipStore) CreateRelationship(ctx context.Context, rel *authz.Relationship) error {
	attrs, _ := json.Marshal(rel.Attributes)
	q := `INSERT INTO relationships(id, source_id, source_kind, target_id, target_kind, rel_type, tenant_id, expires_at, attributes_json, created_at) VALUES(:id, :source_id, :source_kind, :target_id, :target_kind, :rel_type, :tenant_id, :expires_at, :attributes_json, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":              rel.ID,
		"source_id":       rel.SourceID,
		"source_kind":     string(rel.SourceKind),
		"target_id":       rel.TargetID,
		"target_kind":     string(rel.TargetKind),
		"rel_type":        string(rel.Type),
		"tenant_id":       rel.TenantID,
		"expires_at":      sqlNullTimeOrNil(rel.ExpiresAt),
		"attributes_json": string(attrs),
		"created_at":      time.Now(),
	})
	return err
}

func (s *SQLRelationshipStore) DeleteRelationship(ctx context.Context, id string) error {
	_, err := s.db.NamedExecContext(ctx, `DELETE FROM relationships WHERE id = :id`, map[string]any{"id": id})
	return err
}

func (s *SQLRelationshipStore) RelationshipsBetween(ctx context.Context, sourceID, targetID string, relType authz.RelationType, tenantID string) ([]*authz.Relationship, error) {
	q := relSelect + ` WHERE source_id = :source_id AND target_id = :target_id AND (expires_at IS NULL OR expires_at > :now)`
	params := map[string]any{"source_id": sourceID, "target_id": targetID, "now": time.Now()}
	if relType != "" {
		q += " AND rel_type = :rel_type"
		params["rel_type"] = string(relType)
	}
	if tenantID != "" {
		q += " AND (tenant_id = :tenant_id OR tenant_id = '')"
		params["tenant_id"] = tenantID
	}
	return s.queryRelationships(ctx, q, params)
}

func (s *SQLRelationshipStore) RelationshipsFrom(ctx context.Context, sourceID, tenantID string) ([]*authz.Relationship, error) {
	q := relSelect + ` WHERE source_id = :source_id AND (expires_at IS NULL OR expires_at > :now)`
	params := map[string]any{"source_id": sourceID, "now": time.Now()}
	if tenantID != "" {
		q += " AND (tenant_id = :tenant_id OR tenant_id = '')"
		params["tenant_id"] = tenantID
	}
	return s.queryRelationships(ctx, q, params)
}

const relSelect = `SELECT id, source_id, source_kind, target_id, target_kind, rel_type, tenant_id, expires_at, attributes_json, created_at FROM relationships`

func (s *SQLRelationshipStore) queryRelationships(ctx context.Context, q string, params map[string]any) ([]*authz.Relationship, error) {
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*authz.Relationship, 0)
	for r.Next() {
		var id, source, sourceKind, target, targetKind, relType, tenant, attrsJSON string
		var expiresRaw, createdRaw interface{}
		if err := r.Scan(&id, &source, &sourceKind, &target, &targetKind, &relType, &tenant, &expiresRaw, &attrsJSON, &createdRaw); err != nil {
			return nil, err
		}
		rel := &authz.Relationship{
			ID:         id,
			SourceID:   source,
			SourceKind: authz.EntityKind(sourceKind),
			TargetID:   target,
			TargetKind: authz.EntityKind(targetKind),
			Type:       authz.RelationType(relType),
			TenantID:   tenant,
			ExpiresAt:  scanTime(expiresRaw),
			CreatedAt:  scanTime(createdRaw),
		}
		_ = json.Unmarshal([]byte(attrsJSON), &rel.Attributes)
		out = append(out, rel)
	}
	return out, nil
}

func (s *SQLRelationshipStore) CreateResource(ctx context.Context, res *authz.Resource) error {
	attrs, _ := json.Marshal(res.Attributes)
	q := `INSERT INTO resources(id, type, tenant_id, owner_id, parent_id, visibility, attributes_json, created_at) VALUES(:id, :type, :tenant_id, :owner_id, :parent_id, :visibility, :attributes_json, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":              res.ID,
		"type":            res.Type,
		"tenant_id":       res.TenantID,
		"owner_id":        res.OwnerID,
		"parent_id":       res.ParentID,
		"visibility":      string(res.Visibility),
		"attributes_json": string(attrs),
		"created_at":      time.Now(),
	})
	return err
}

func (s *SQLRelationshipStore) DeleteResource(ctx context.Context, id string) error {
	_, err := s.db.NamedExecContext(ctx, `DELETE FROM resources WHERE id = :id`, map[string]any{"id": id})
	return err
}

func (s *SQLRelationshipStore) ResourceByID(ctx context.Context, id, tenantID string) (*authz.Resource, error) {
	q := `SELECT id, type, tenant_id, owner_id, parent_id, visibility, attributes_json, created_at FROM resources WHERE id = :id`
	params := map[string]any{"id": id}
	if tenantID != "" {
		q += " AND (tenant_id = :tenant_id OR tenant_id = '')"
		params["tenant_id"] = tenantID
	}
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("resource %s: %w", id, authz.ErrNotFound)
	}
	var idv, typ, tenant, owner, parent, visibility, attrsJSON string
	var createdRaw interface{}
	if err := r.Scan(&idv, &typ, &tenant, &owner, &parent, &visibility, &attrsJSON, &createdRaw); err != nil {
		return nil, err
	}
	res := &authz.Resource{
		ID:         idv,
		Type:       typ,
		TenantID:   tenant,
		OwnerID:    owner,
		ParentID:   parent,
		Visibility: authz.Visibility(visibility),
		CreatedAt:  scanTime(createdRaw),
	}
	_ = json.Unmarshal([]byte(attrsJSON), &res.Attributes)
	return res, nil
}
