package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entgrid/authz/logger"
)

// DefaultMaxRelationshipDepth bounds the transitive graph search.
const DefaultMaxRelationshipDepth = 3

// RebacEngine grants access through relationships: direct edges first, then
// a bounded breadth-first search over the relationship graph, then recorded
// resource ownership as a final fallback.
type RebacEngine struct {
	rels     RelationshipStore
	maxDepth int
	logger   logger.Logger
}

func NewRebacEngine(rels RelationshipStore, maxDepth int, log logger.Logger) *RebacEngine {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxRelationshipDepth
	}
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &RebacEngine{rels: rels, maxDepth: maxDepth, logger: log}
}

func (e *RebacEngine) Name() string { return "rebac" }

// Supports is always true: any subject/resource pair may be related.
func (e *RebacEngine) Supports(_ *AuthorizationContext) bool { return true }

func (e *RebacEngine) Authorize(ctx context.Context, ac *AuthorizationContext) *Decision {
	start := time.Now()
	dec, err := e.evaluate(ctx, ac, start)
	if err != nil {
		e.logger.Error("rebac evaluation fault", "subject", ac.SubjectID, "error", err.Error())
		return faultDecision(start, "rebac", err)
	}
	return dec
}

func (e *RebacEngine) evaluate(ctx context.Context, ac *AuthorizationContext, start time.Time) (*Decision, error) {
	// 1. direct relationships
	direct, err := e.rels.RelationshipsBetween(ctx, ac.SubjectID, ac.ResourceID, "", ac.TenantID)
	if err != nil {
		return nil, fmt.Errorf("fetch direct relationships: %w", err)
	}
	for _, rel := range direct {
		if rel.IsExpired() {
			continue
		}
		if relationImplies(rel, ac.Action) {
			dec := newAllow(start, fmt.Sprintf("Direct %s relationship grants %s", rel.Type, ac.Action))
			dec.AppliedPermissions = []string{rel.ID}
			return dec, nil
		}
	}

	// 2. transitive paths
	if path, err := e.searchPath(ctx, ac); err != nil {
		return nil, err
	} else if path != nil {
		dec := newAllow(start, fmt.Sprintf("Relationship path (distance %d) via %s grants %s",
			path.Distance, path.Last().Type, ac.Action))
		ids := make([]string, 0, len(path.Relationships))
		for _, rel := range path.Relationships {
			ids = append(ids, rel.ID)
		}
		dec.AppliedPermissions = ids
		return dec, nil
	}

	// 3. recorded ownership, independent of the relationship edges
	res, err := e.rels.ResourceByID(ctx, ac.ResourceID, ac.TenantID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("fetch resource: %w", err)
	}
	if res != nil && res.OwnerID != "" && res.OwnerID == ac.SubjectID {
		return newAllow(start, "Subject owns the resource"), nil
	}

	return newDeny(start, KindNoGrant,
		fmt.Sprintf("No relationship grants %s on %s", ac.Action, ac.ResourceID)), nil
}

type searchFrontier struct {
	node string
	path []*Relationship
}

// searchPath runs a bounded BFS from the subject. The target resource is
// never enqueued; every edge reaching it yields a candidate path whose last
// relationship must imply the action. Nodes are marked visited on first
// enqueue so cyclic graphs terminate.
func (e *RebacEngine) searchPath(ctx context.Context, ac *AuthorizationContext) (*RelationshipPath, error) {
	queue := []searchFrontier{{node: ac.SubjectID}}
	visited := map[string]bool{ac.SubjectID: true}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if len(current.path) >= e.maxDepth {
			continue
		}
		outgoing, err := e.rels.RelationshipsFrom(ctx, current.node, ac.TenantID)
		if err != nil {
			return nil, fmt.Errorf("expand relationships from %s: %w", current.node, err)
		}
		for _, rel := range outgoing {
			if rel.IsExpired() {
				continue
			}
			if rel.TargetID == ac.ResourceID {
				if relationImplies(rel, ac.Action) {
					path := append(append([]*Relationship{}, current.path...), rel)
					return &RelationshipPath{Relationships: path, Distance: len(path)}, nil
				}
				continue
			}
			if !visited[rel.TargetID] {
				visited[rel.TargetID] = true
				path := append(append([]*Relationship{}, current.path...), rel)
				queue = append(queue, searchFrontier{node: rel.TargetID, path: path})
			}
		}
	}
	return nil, nil
}

// relationImplies is the rule table mapping relationship types to the
// actions they grant.
func relationImplies(rel *Relationship, action string) bool {
	switch rel.Type {
	case RelOwner:
		return true
	case RelAdmin:
		return action == "read" || action == "write" || action == "delete" || action == "admin"
	case RelEditor:
		return action == "read" || action == "write"
	case RelViewer:
		return action == "read"
	case RelSharedWith:
		for _, a := range rel.SharedActions() {
			if a == action {
				return true
			}
		}
		return false
	}
	return false
}
