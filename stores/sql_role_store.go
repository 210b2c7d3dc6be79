package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/entgrid/authz"
	"github.com/oarkflow/squealx"
)

// SQLRoleStore persists roles and role assignments in SQL (squealx).
type SQLRoleStore struct {
	db *squealx.DB
}

func NewSQLRoleStore(db *squealx.DB) *SQLRoleStore {
	return &SQLRoleStore{db: db}
}

func (s *SQLRoleStore) CreateRole(ctx context.Context, r *authz.Role) error {
	perms, _ := json.Marshal(r.Permissions)
	q := `INSERT INTO roles(id, tenant_id, name, permissions_json, parent_id, version, created_at, updated_at) VALUES(:id, :tenant_id, :name, :permissions_json, :parent_id, :version, :created_at, :updated_at)`
	now := time.Now()
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":               r.ID,
		"tenant_id":        r.TenantID,
		"name":             r.Name,
		"permissions_json": string(perms),
		"parent_id":        r.ParentID,
		"version":          r.Version,
		"created_at":       now,
		"updated_at":       now,
	})
	return err
}

func (s *SQLRoleStore) UpdateRole(ctx context.Context, r *authz.Role) error {
	perms, _ := json.Marshal(r.Permissions)
	q := `UPDATE roles SET tenant_id=:tenant_id, name=:name, permissions_json=:permissions_json, parent_id=:parent_id, version=version+1, updated_at=:updated_at WHERE id=:id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":               r.ID,
		"tenant_id":        r.TenantID,
		"name":             r.Name,
		"permissions_json": string(perms),
		"parent_id":        r.ParentID,
		"updated_at":       time.Now(),
	})
	return err
}

func (s *SQLRoleStore) DeleteRole(ctx context.Context, id string) error {
	_, err := s.db.NamedExecContext(ctx, `DELETE FROM roles WHERE id = :id`, map[string]any{"id": id})
	return err
}

func (s *SQLRoleStore) AssignRole(ctx context.Context, a *authz.RoleAssignment) error {
	q := `INSERT INTO role_assignments(id, subject_id, subject_type, role_id, tenant_id, expires_at, created_at) VALUES(:id, :subject_id, :subject_type, :role_id, :tenant_id, :expires_at, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":           a.ID,
		"subject_id":   a.SubjectID,
		"subject_type": string(a.SubjectType),
		"role_id":      a.RoleID,
		"tenant_id":    a.TenantID,
		"expires_at":   sqlNullTimeOrNil(a.ExpiresAt),
		"created_at":   time.Now(),
	})
	return err
}

func (s *SQLRoleStore) RevokeAssignment(ctx context.Context, id string) error {
	_, err := s.db.NamedExecContext(ctx, `DELETE FROM role_assignments WHERE id = :id`, map[string]any{"id": id})
	return err
}

func (s *SQLRoleStore) RolesForSubject(ctx context.Context, subjectID string, subjectType authz.SubjectType, tenantID string) ([]*authz.RoleAssignment, error) {
	q := `SELECT id, subject_id, subject_type, role_id, tenant_id, expires_at, created_at FROM role_assignments WHERE subject_id = :subject_id AND (expires_at IS NULL OR expires_at > :now)`
	params := map[string]any{"subject_id": subjectID, "now": time.Now()}
	if subjectType != "" {
		q += " AND subject_type = :subject_type"
		params["subject_type"] = string(subjectType)
	}
	if tenantID != "" {
		q += " AND (tenant_id = :tenant_id OR tenant_id = '')"
		params["tenant_id"] = tenantID
	}
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*authz.RoleAssignment, 0)
	for r.Next() {
		var id, subject, subjType, roleID, tenant string
		var expiresRaw, createdRaw interface{}
		if err := r.Scan(&id, &subject, &subjType, &roleID, &tenant, &expiresRaw, &createdRaw); err != nil {
			return nil, err
		}
		out = append(out, &authz.RoleAssignment{
			ID:          id,
			SubjectID:   subject,
			SubjectType: authz.SubjectType(subjType),
			RoleID:      roleID,
			TenantID:    tenant,
			ExpiresAt:   scanTime(expiresRaw),
			CreatedAt:   scanTime(createdRaw),
		})
	}
	return out, nil
}

func (s *SQLRoleStore) RoleByID(ctx context.Context, id, tenantID string) (*authz.Role, error) {
	q := `SELECT id, tenant_id, name, permissions_json, parent_id, version, created_at, updated_at FROM roles WHERE id = :id`
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
		return nil, fmt.Errorf("role %s: %w", id, authz.ErrNotFound)
	}
	var idv, tenant, name, permsJSON, parentID string
	var version int
	var createdRaw, updatedRaw interface{}
	if err := r.Scan(&idv, &tenant, &name, &permsJSON, &parentID, &version, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	role := &authz.Role{
		ID:        idv,
		TenantID:  tenant,
		Name:      name,
		ParentID:  parentID,
		Version:   version,
		CreatedAt: scanTime(createdRaw),
		UpdatedAt: scanTime(updatedRaw),
	}
	_ = json.Unmarshal([]byte(permsJSON), &role.Permissions)
	return role, nil
}

func (s *SQLRoleStore) ListRoles(ctx context.Context, tenantID string) ([]*authz.Role, error) {
	q := `SELECT id FROM roles WHERE tenant_id = :tenant_id OR tenant_id = ''`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"tenant_id": tenantID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*authz.Role, 0)
	for r.Next() {
		var id string
		_ = r.Scan(&id)
		if role, err := s.RoleByID(ctx, id, tenantID); err == nil {
			out = append(out, role)
		}
	}
	return out, nil
}
