package authz

import (
	"context"
	"strings"
)

// ExplainRequest is the wire-friendly form of an explain call, as an admin
// surface would accept it. Resource uses "type:id".
type ExplainRequest struct {
	TenantID     string         `json:"tenant_id,omitempty"`
	SubjectID    string         `json:"subject_id"`
	SubjectType  SubjectType    `json:"subject_type,omitempty"`
	Action       string         `json:"action"`
	Resource     string         `json:"resource"`
	UserAttrs    map[string]any `json:"user_attrs,omitempty"`
	ResourceAttr map[string]any `json:"resource_attrs,omitempty"`
	EnvAttrs     map[string]any `json:"env_attrs,omitempty"`
}

// Context converts the request into an AuthorizationContext.
func (r *ExplainRequest) Context() *AuthorizationContext {
	resourceType := ""
	resourceID := r.Resource
	if idx := strings.Index(r.Resource, ":"); idx != -1 {
		resourceType = r.Resource[:idx]
		resourceID = r.Resource[idx+1:]
	}
	subjectType := r.SubjectType
	if subjectType == "" {
		subjectType = SubjectUser
	}
	return &AuthorizationContext{
		SubjectID:     r.SubjectID,
		SubjectType:   subjectType,
		ResourceID:    resourceID,
		ResourceType:  resourceType,
		Action:        r.Action,
		TenantID:      r.TenantID,
		UserAttrs:     r.UserAttrs,
		ResourceAttrs: r.ResourceAttr,
		EnvAttrs:      r.EnvAttrs,
	}
}

// ExplainRequest resolves the request and returns the combined decision plus
// each engine's individual verdict.
func (s *AuthorizationService) ExplainRequest(ctx context.Context, req *ExplainRequest) (*Decision, map[string]*Decision) {
	return s.Explain(ctx, req.Context())
}
