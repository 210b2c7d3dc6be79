package authz_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/entgrid/authz"
	"github.com/entgrid/authz/stores"
)

func seedRel(t *testing.T, store *stores.MemoryRelationshipStore, rel *authz.Relationship) {
	t.Helper()
	if err := store.CreateRelationship(context.Background(), rel); err != nil {
		t.Fatalf("create relationship %s: %v", rel.ID, err)
	}
}

func relContext(subject, resource, action string) *authz.AuthorizationContext {
	return authz.NewContextBuilder().Subject(subject).
		Resource(resource, "document").Action(action).Build()
}

func TestRebacDirectRelationship(t *testing.T) {
	store := stores.NewMemoryRelationshipStore()
	seedRel(t, store, authz.NewRelationshipBuilder().ID("r1").
		Source("alice", authz.EntityUser).Target("doc-1", authz.EntityResource).
		Type(authz.RelOwner).Build())
	seedRel(t, store, authz.NewRelationshipBuilder().ID("r2").
		Source("bob", authz.EntityUser).Target("doc-1", authz.EntityResource).
		Type(authz.RelViewer).Build())

	eng := authz.NewRebacEngine(store, 0, nil)
	dec := eng.Authorize(context.Background(), relContext("alice", "doc-1", "delete"))
	if !dec.Allowed {
		t.Fatalf("owner delete: expected allow, got %s", dec.Reason)
	}
	if dec.Reason != "Direct OWNER relationship grants delete" {
		t.Fatalf("unexpected reason: %s", dec.Reason)
	}

	dec = eng.Authorize(context.Background(), relContext("bob", "doc-1", "read"))
	if !dec.Allowed {
		t.Fatalf("viewer read: expected allow, got %s", dec.Reason)
	}
	dec = eng.Authorize(context.Background(), relContext("bob", "doc-1", "write"))
	if dec.Allowed {
		t.Fatal("viewer write: expected deny")
	}
	if dec.Reason != "No relationship grants write on doc-1" {
		t.Fatalf("unexpected reason: %s", dec.Reason)
	}
}

func TestRebacSharedActions(t *testing.T) {
	store := stores.NewMemoryRelationshipStore()
	seedRel(t, store, authz.NewRelationshipBuilder().ID("r1").
		Source("carol", authz.EntityUser).Target("doc-1", authz.EntityResource).
		Type(authz.RelSharedWith).SharedActions("read", "comment").Build())

	eng := authz.NewRebacEngine(store, 0, nil)
	if dec := eng.Authorize(context.Background(), relContext("carol", "doc-1", "comment")); !dec.Allowed {
		t.Fatalf("expected shared comment allow, got %s", dec.Reason)
	}
	if dec := eng.Authorize(context.Background(), relContext("carol", "doc-1", "delete")); dec.Allowed {
		t.Fatal("expected shared delete deny")
	}
}

func TestRebacTransitivePath(t *testing.T) {
	store := stores.NewMemoryRelationshipStore()
	// alice -> team-eng -> doc-1
	seedRel(t, store, authz.NewRelationshipBuilder().ID("r1").
		Source("alice", authz.EntityUser).Target("team-eng", authz.EntityGroup).
		Type(authz.RelMemberOf).Build())
	seedRel(t, store, authz.NewRelationshipBuilder().ID("r2").
		Source("team-eng", authz.EntityGroup).Target("doc-1", authz.EntityResource).
		Type(authz.RelEditor).Build())

	eng := authz.NewRebacEngine(store, 0, nil)
	dec := eng.Authorize(context.Background(), relContext("alice", "doc-1", "write"))
	if !dec.Allowed {
		t.Fatalf("expected transitive allow, got %s", dec.Reason)
	}
	if !strings.Contains(dec.Reason, "distance 2") {
		t.Fatalf("expected distance 2 path, got: %s", dec.Reason)
	}
	if len(dec.AppliedPermissions) != 2 {
		t.Fatalf("expected both edge ids on the decision, got %v", dec.AppliedPermissions)
	}

	// the same path is out of reach when the depth bound is 1
	shallow := authz.NewRebacEngine(store, 1, nil)
	if dec := shallow.Authorize(context.Background(), relContext("alice", "doc-1", "write")); dec.Allowed {
		t.Fatal("expected deny at depth 1")
	}
}

func TestRebacLastEdgeMustImplyAction(t *testing.T) {
	store := stores.NewMemoryRelationshipStore()
	seedRel(t, store, authz.NewRelationshipBuilder().ID("r1").
		Source("alice", authz.EntityUser).Target("team-eng", authz.EntityGroup).
		Type(authz.RelMemberOf).Build())
	seedRel(t, store, authz.NewRelationshipBuilder().ID("r2").
		Source("team-eng", authz.EntityGroup).Target("doc-1", authz.EntityResource).
		Type(authz.RelViewer).Build())

	eng := authz.NewRebacEngine(store, 0, nil)
	if dec := eng.Authorize(context.Background(), relContext("alice", "doc-1", "write")); dec.Allowed {
		t.Fatal("viewer edge must not grant write")
	}
	if dec := eng.Authorize(context.Background(), relContext("alice", "doc-1", "read")); !dec.Allowed {
		t.Fatalf("viewer edge should grant read, got %s", dec.Reason)
	}
}

func TestRebacCyclicGraphTerminates(t *testing.T) {
	store := stores.NewMemoryRelationshipStore()
	seedRel(t, store, authz.NewRelationshipBuilder().ID("r1").
		Source("alice", authz.EntityUser).Target("g1", authz.EntityGroup).
		Type(authz.RelMemberOf).Build())
	seedRel(t, store, authz.NewRelationshipBuilder().ID("r2").
		Source("g1", authz.EntityGroup).Target("g2", authz.EntityGroup).
		Type(authz.RelMemberOf).Build())
	seedRel(t, store, authz.NewRelationshipBuilder().ID("r3").
		Source("g2", authz.EntityGroup).Target("g1", authz.EntityGroup).
		Type(authz.RelMemberOf).Build())

	eng := authz.NewRebacEngine(store, 0, nil)
	if dec := eng.Authorize(context.Background(), relContext("alice", "doc-1", "read")); dec.Allowed {
		t.Fatalf("expected deny, got allow: %s", dec.Reason)
	}
}

func TestRebacExpiredRelationshipSkipped(t *testing.T) {
	store := stores.NewMemoryRelationshipStore()
	seedRel(t, store, authz.NewRelationshipBuilder().ID("r1").
		Source("alice", authz.EntityUser).Target("doc-1", authz.EntityResource).
		Type(authz.RelOwner).ExpiresAt(time.Now().Add(-time.Minute)).Build())

	eng := authz.NewRebacEngine(store, 0, nil)
	if dec := eng.Authorize(context.Background(), relContext("alice", "doc-1", "read")); dec.Allowed {
		t.Fatal("expected expired relationship to be ignored")
	}
}

func TestRebacOwnershipFallback(t *testing.T) {
	store := stores.NewMemoryRelationshipStore()
	if err := store.CreateResource(context.Background(), &authz.Resource{
		ID: "doc-9", Type: "document", OwnerID: "alice",
	}); err != nil {
		t.Fatalf("create resource: %v", err)
	}

	eng := authz.NewRebacEngine(store, 0, nil)
	dec := eng.Authorize(context.Background(), relContext("alice", "doc-9", "delete"))
	if !dec.Allowed {
		t.Fatalf("expected ownership allow, got %s", dec.Reason)
	}
	if dec.Reason != "Subject owns the resource" {
		t.Fatalf("unexpected reason: %s", dec.Reason)
	}

	if dec := eng.Authorize(context.Background(), relContext("mallory", "doc-9", "read")); dec.Allowed {
		t.Fatal("expected deny for non-owner")
	}
}
