package authz

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/entgrid/authz/logger"
)

// ============================================================================
// AUTHORIZATION SERVICE
// ============================================================================

// DefaultDecisionCacheTTL is how long combined decisions stay cached.
const DefaultDecisionCacheTTL = 60 * time.Second

const defaultAuditBuffer = 1024

// AuthorizationService is the decision point in front of the engines. Each
// request passes the environmental condition gate, then the decision cache,
// then every engine that supports the context; the individual verdicts are
// combined with explicit-deny precedence.
type AuthorizationService struct {
	engines   []AuthzEngine
	evaluator *DynamicConditionEvaluator
	cache     Cache
	cacheTTL  time.Duration
	logger    logger.Logger
	traceID   logger.TraceIDFunc

	audit       AuditSink
	auditBuffer int
	auditCh     chan *AuditEntry
	auditWg     sync.WaitGroup
	closed      chan struct{}
}

// ServiceOption configures an AuthorizationService.
type ServiceOption func(*AuthorizationService)

func WithCache(c Cache) ServiceOption {
	return func(s *AuthorizationService) { s.cache = c }
}

func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *AuthorizationService) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func WithConditionEvaluator(ev *DynamicConditionEvaluator) ServiceOption {
	return func(s *AuthorizationService) { s.evaluator = ev }
}

func WithAuditSink(sink AuditSink) ServiceOption {
	return func(s *AuthorizationService) { s.audit = sink }
}

// WithAuditBuffer sizes the audit queue between the decision path and the
// sink worker. Entries beyond the buffer are dropped, not blocked on.
func WithAuditBuffer(n int) ServiceOption {
	return func(s *AuthorizationService) {
		if n > 0 {
			s.auditBuffer = n
		}
	}
}

func WithServiceLogger(log logger.Logger) ServiceOption {
	return func(s *AuthorizationService) { s.logger = log }
}

func WithTraceIDFunc(fn logger.TraceIDFunc) ServiceOption {
	return func(s *AuthorizationService) { s.traceID = fn }
}

func NewAuthorizationService(engines []AuthzEngine, opts ...ServiceOption) *AuthorizationService {
	s := &AuthorizationService{
		engines:     engines,
		cacheTTL:    DefaultDecisionCacheTTL,
		logger:      logger.NewNullLogger(),
		auditBuffer: defaultAuditBuffer,
		closed:      make(chan struct{}),
		traceID: func() string {
			return strconv.FormatInt(time.Now().UnixNano(), 36)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.evaluator == nil {
		s.evaluator = NewDynamicConditionEvaluator(ConditionConfig{}, s.logger)
	}
	if s.cache == nil {
		s.cache = NewMemoryCache()
	}
	if s.audit != nil {
		s.auditCh = make(chan *AuditEntry, s.auditBuffer)
		s.auditWg.Add(1)
		go s.auditWorker()
	}
	return s
}

// Close stops the audit worker after draining queued entries. The service
// must not be used afterwards.
func (s *AuthorizationService) Close() {
	select {
	case <-s.closed:
		return
	default:
	}
	close(s.closed)
	if s.auditCh != nil {
		close(s.auditCh)
		s.auditWg.Wait()
	}
}

// Authorize runs the full decision pipeline for one request.
func (s *AuthorizationService) Authorize(ctx context.Context, ac *AuthorizationContext) *Decision {
	start := time.Now()

	// environmental veto: audited but never cached, the environment shifts
	// faster than any sensible TTL
	if ok, reason := s.evaluator.Evaluate(ac); !ok {
		dec := newDeny(start, KindNoGrant, reason)
		s.recordDecision(ac, dec)
		return dec
	}

	key := s.cacheKey(ac)
	if cached, ok := s.cache.Get(ctx, key); ok {
		dec := &Decision{
			Allowed:        cached == "allow",
			Reason:         "Cached decision",
			Cached:         true,
			EvaluationTime: time.Since(start),
			Timestamp:      start,
		}
		if dec.Allowed {
			dec.Kind = KindAllow
		} else {
			dec.Kind = KindNoGrant
		}
		return dec
	}

	applicable := make([]AuthzEngine, 0, len(s.engines))
	for _, eng := range s.engines {
		if eng.Supports(ac) {
			applicable = append(applicable, eng)
		}
	}
	if len(applicable) == 0 {
		dec := newDeny(start, KindNoGrant, "No applicable authorization engines")
		s.recordDecision(ac, dec)
		return dec
	}

	decisions := make([]*Decision, 0, len(applicable))
	for _, eng := range applicable {
		decisions = append(decisions, eng.Authorize(ctx, ac))
	}

	dec := combineDecisions(decisions)
	dec.EvaluationTime = time.Since(start)
	dec.Timestamp = start

	if dec.Allowed {
		s.cache.Set(ctx, key, "allow", s.cacheTTL)
	} else {
		s.cache.Set(ctx, key, "deny", s.cacheTTL)
	}
	s.recordDecision(ac, dec)
	return dec
}

// AuthorizeBulk evaluates every context sequentially. The result slice is
// index-aligned with the input.
func (s *AuthorizationService) AuthorizeBulk(ctx context.Context, acs []*AuthorizationContext) []*Decision {
	out := make([]*Decision, len(acs))
	for i, ac := range acs {
		out[i] = s.Authorize(ctx, ac)
	}
	return out
}

// EvaluateContextConditions exposes the environmental gate on its own, for
// callers that want a cheap pre-check without a full decision.
func (s *AuthorizationService) EvaluateContextConditions(ac *AuthorizationContext) bool {
	ok, _ := s.evaluator.Evaluate(ac)
	return ok
}

// Explain evaluates every supporting engine and returns the combined verdict
// together with each engine's individual decision, keyed by engine name. It
// bypasses the cache in both directions so the per-engine view is live.
func (s *AuthorizationService) Explain(ctx context.Context, ac *AuthorizationContext) (*Decision, map[string]*Decision) {
	start := time.Now()
	perEngine := make(map[string]*Decision, len(s.engines))

	if ok, reason := s.evaluator.Evaluate(ac); !ok {
		return newDeny(start, KindNoGrant, reason), perEngine
	}

	decisions := make([]*Decision, 0, len(s.engines))
	for _, eng := range s.engines {
		if !eng.Supports(ac) {
			continue
		}
		d := eng.Authorize(ctx, ac)
		perEngine[eng.Name()] = d
		decisions = append(decisions, d)
	}
	if len(decisions) == 0 {
		return newDeny(start, KindNoGrant, "No applicable authorization engines"), perEngine
	}
	dec := combineDecisions(decisions)
	dec.EvaluationTime = time.Since(start)
	dec.Timestamp = start
	return dec, perEngine
}

func (s *AuthorizationService) cacheKey(ac *AuthorizationContext) string {
	tenant := ac.TenantID
	if tenant == "" {
		tenant = "default"
	}
	return ac.SubjectID + ":" + ac.ResourceID + ":" + ac.Action + ":" + tenant
}

// combineDecisions merges per-engine verdicts: any explicit deny wins, then
// the first allow, then the first decision as the reported deny. Applied
// role/policy/permission IDs are the de-duplicated union across all engines
// regardless of which verdict won.
func combineDecisions(decisions []*Decision) *Decision {
	var winner *Decision
	for _, d := range decisions {
		if d.Kind == KindExplicitDeny {
			winner = d
			break
		}
	}
	if winner == nil {
		for _, d := range decisions {
			if d.Allowed {
				winner = d
				break
			}
		}
	}
	if winner == nil {
		winner = decisions[0]
	}

	out := &Decision{
		Allowed: winner.Allowed,
		Kind:    winner.Kind,
		Reason:  winner.Reason,
	}
	for _, d := range decisions {
		out.AppliedPolicies = appendUnique(out.AppliedPolicies, d.AppliedPolicies)
		out.AppliedRoles = appendUnique(out.AppliedRoles, d.AppliedRoles)
		out.AppliedPermissions = appendUnique(out.AppliedPermissions, d.AppliedPermissions)
		for k, v := range d.ConditionResults {
			if out.ConditionResults == nil {
				out.ConditionResults = make(map[string]bool)
			}
			out.ConditionResults[k] = v
		}
	}
	return out
}

func appendUnique(dst []string, src []string) []string {
	for _, s := range src {
		found := false
		for _, d := range dst {
			if d == s {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, s)
		}
	}
	return dst
}

// ============================================================================
// AUDIT
// ============================================================================

func (s *AuthorizationService) recordDecision(ac *AuthorizationContext, dec *Decision) {
	s.logger.Info("authorization decision",
		"subject", ac.SubjectID,
		"resource", ac.ResourceID,
		"action", ac.Action,
		"tenant", ac.TenantID,
		"allowed", dec.Allowed,
		"kind", string(dec.Kind),
		"reason", dec.Reason,
		"duration_ms", dec.EvaluationTime.Milliseconds(),
	)
	if s.auditCh == nil {
		return
	}
	entry := &AuditEntry{
		ID:        s.traceID(),
		Timestamp: dec.Timestamp,
		Context:   ac,
		Decision:  dec,
		RequestID: metadataString(ac, "requestId"),
		IP:        attrString(ac.EnvAttrs, "clientIp"),
		UserAgent: metadataString(ac, "userAgent"),
	}
	// never block the decision path on audit backpressure
	select {
	case s.auditCh <- entry:
	default:
		s.logger.Error("audit queue full, entry dropped", "subject", ac.SubjectID, "resource", ac.ResourceID)
	}
}

func (s *AuthorizationService) auditWorker() {
	defer s.auditWg.Done()
	for entry := range s.auditCh {
		if err := s.audit.Record(context.Background(), entry); err != nil {
			s.logger.Error("audit record failed", "id", entry.ID, "error", err.Error())
		}
	}
}

func metadataString(ac *AuthorizationContext, key string) string {
	if ac.Metadata == nil {
		return ""
	}
	if s, ok := ac.Metadata[key].(string); ok {
		return s
	}
	return ""
}
