package stores

import (
	"context"
	"encoding/json"

	"github.com/entgrid/authz"
	"github.com/oarkflow/squealx"
)

// SQLAuditStore persists decision records in SQL. The hot columns are split
// out for filtering; the full decision rides along as JSON.
type SQLAuditStore struct {
	db *squealx.DB
}

func NewSQLAuditStore(db *squealx.DB) *SQLAuditStore {
	return &SQLAuditStore{db: db}
}

func (s *SQLAuditStore) Record(ctx context.Context, entry *authz.AuditEntry) error {
	decisionB, _ := json.Marshal(entry.Decision)
	tenant, subject, resource, action := "", "", "", ""
	if entry.Context != nil {
		tenant = entry.Context.TenantID
		subject = entry.Context.SubjectID
		resource = entry.Context.ResourceID
		action = entry.Context.Action
	}
	allowed, kind, reason := 0, "", ""
	if entry.Decision != nil {
		allowed = boolToInt(entry.Decision.Allowed)
		kind = string(entry.Decision.Kind)
		reason = entry.Decision.Reason
	}
	q := `INSERT INTO audit_log(id, timestamp, tenant_id, subject_id, resource_id, action, allowed, kind, reason, request_id, ip, user_agent, decision_json) VALUES(:id, :timestamp, :tenant_id, :subject_id, :resource_id, :action, :allowed, :kind, :reason, :request_id, :ip, :user_agent, :decision_json)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":            entry.ID,
		"timestamp":     entry.Timestamp,
		"tenant_id":     tenant,
		"subject_id":    subject,
		"resource_id":   resource,
		"action":        action,
		"allowed":       allowed,
		"kind":          kind,
		"reason":        reason,
		"request_id":    entry.RequestID,
		"ip":            entry.IP,
		"user_agent":    entry.UserAgent,
		"decision_json": string(decisionB),
	})
	return err
}

func (s *SQLAuditStore) Query(ctx context.Context, filter authz.AuditFilter) ([]*authz.AuditEntry, error) {
	q := `SELECT id, timestamp, tenant_id, subject_id, resource_id, action, request_id, ip, user_agent, decision_json FROM audit_log WHERE 1=1`
	params := map[string]any{}
	if filter.SubjectID != "" {
		q += " AND subject_id = :subject_id"
		params["subject_id"] = filter.SubjectID
	}
	if filter.ResourceID != "" {
		q += " AND resource_id = :resource_id"
		params["resource_id"] = filter.ResourceID
	}
	if filter.Action != "" {
		q += " AND action = :action"
		params["action"] = filter.Action
	}
	if filter.TenantID != "" {
		q += " AND tenant_id = :tenant_id"
		params["tenant_id"] = filter.TenantID
	}
	if !filter.StartTime.IsZero() {
		q += " AND timestamp >= :start"
		params["start"] = filter.StartTime
	}
	if !filter.EndTime.IsZero() {
		q += " AND timestamp <= :end"
		params["end"] = filter.EndTime
	}
	if filter.Limit > 0 {
		q += " LIMIT :limit"
		params["limit"] = filter.Limit
	} else {
		q += " LIMIT 100"
	}
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*authz.AuditEntry, 0)
	for r.Next() {
		var id, tenant, subject, resource, action, requestID, ip, userAgent, decisionJSON string
		var timestampRaw interface{}
		if err := r.Scan(&id, &timestampRaw, &tenant, &subject, &resource, &action, &requestID, &ip, &userAgent, &decisionJSON); err != nil {
			return nil, err
		}
		entry := &authz.AuditEntry{
			ID:        id,
			Timestamp: scanTime(timestampRaw),
			RequestID: requestID,
			IP:        ip,
			UserAgent: userAgent,
			Context: &authz.AuthorizationContext{
				SubjectID:  subject,
				ResourceID: resource,
				Action:     action,
				TenantID:   tenant,
			},
		}
		var dec authz.Decision
		if err := json.Unmarshal([]byte(decisionJSON), &dec); err == nil {
			entry.Decision = &dec
		}
		out = append(out, entry)
	}
	return out, nil
}
