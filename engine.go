package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/unionhall/policy/logger"
	"github.com/unionhall/policy/utils"
)

// AdminPermission is the permission key that triggers the admin bypass.
const AdminPermission = "admin"

const (
	DefaultCacheTTL     = 5 * time.Minute
	DefaultCacheSize    = 10000
	DefaultBatchWorkers = 8
)

// ============================================================================
// ENGINE
// ============================================================================

// Engine is the access-policy evaluation engine. Policies, linkage resolvers
// and entity loaders are registered during an explicit startup phase; after
// that the registries are treated as immutable and read without locks. The
// decision cache is the only shared mutable structure.
type Engine struct {
	storage     Storage
	permissions PermissionStore
	components  ComponentChecker

	policies  map[string]*Policy
	resolvers map[LinkagePredicate]*LinkageResolver
	loaders   map[EntityType]EntityLoader

	cache        DecisionCache
	batchWorkers int

	logger      logger.Logger
	traceIDFunc logger.TraceIDFunc
	now         func() time.Time
}

// EngineOption configures the engine at construction time.
type EngineOption func(*Engine) error

// WithDecisionCache replaces the default in-memory TTL/LRU decision cache.
func WithDecisionCache(c DecisionCache) EngineOption {
	return func(e *Engine) error {
		if c == nil {
			return fmt.Errorf("decision cache is nil")
		}
		e.cache = c
		return nil
	}
}

// WithCacheTTL sets the TTL of the default decision cache. It cannot follow
// WithDecisionCache: a replacement cache carries its own expiry and this
// option errors rather than silently doing nothing.
func WithCacheTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) error {
		if ttl <= 0 {
			return fmt.Errorf("cache ttl must be positive")
		}
		ac, ok := e.cache.(*AccessCache)
		if !ok {
			return fmt.Errorf("cache ttl applies to the default decision cache; order it before WithDecisionCache")
		}
		ac.ttl = ttl
		return nil
	}
}

// WithCacheSize sets the capacity of the default decision cache. Like
// WithCacheTTL it errors when the cache has already been replaced.
func WithCacheSize(n int) EngineOption {
	return func(e *Engine) error {
		if n <= 0 {
			return fmt.Errorf("cache size must be positive")
		}
		ac, ok := e.cache.(*AccessCache)
		if !ok {
			return fmt.Errorf("cache size applies to the default decision cache; order it before WithDecisionCache")
		}
		ac.maxSize = n
		return nil
	}
}

// WithBatchWorkers bounds the fan-out of EvaluateBatch.
func WithBatchWorkers(n int) EngineOption {
	return func(e *Engine) error {
		if n <= 0 {
			return fmt.Errorf("batch worker count must be positive")
		}
		e.batchWorkers = n
		return nil
	}
}

// WithClock overrides the engine's time source (used by tests). Only the
// default decision cache follows the clock; a replacement cache installed
// via WithDecisionCache keeps its own.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) error {
		e.now = now
		if ac, ok := e.cache.(*AccessCache); ok {
			ac.now = now
		}
		return nil
	}
}

// NewEngine wires an engine with the builtin linkage resolvers and entity
// loaders. Further registration must happen before the first Evaluate call.
func NewEngine(st Storage, perms PermissionStore, components ComponentChecker, opts ...EngineOption) (*Engine, error) {
	if st == nil || perms == nil || components == nil {
		return nil, fmt.Errorf("storage, permission store and component checker are required")
	}
	e := &Engine{
		storage:      st,
		permissions:  perms,
		components:   components,
		policies:     make(map[string]*Policy),
		resolvers:    make(map[LinkagePredicate]*LinkageResolver),
		loaders:      make(map[EntityType]EntityLoader),
		cache:        NewAccessCache(DefaultCacheTTL, DefaultCacheSize),
		batchWorkers: DefaultBatchWorkers,
		logger:       logger.NewNullLogger(),
		now:          time.Now,
	}
	registerBuiltinResolvers(e)
	registerBuiltinLoaders(e)
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// ============================================================================
// STARTUP REGISTRATION
// ============================================================================

// RegisterPolicy adds a policy to the registry. Policies are immutable once
// registered; registering the same id twice is a configuration error.
func (e *Engine) RegisterPolicy(p *Policy) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("policy id is required")
	}
	if len(p.Rules) == 0 {
		return fmt.Errorf("policy %s must have at least one rule", p.ID)
	}
	for i, r := range p.Rules {
		if r == nil {
			return fmt.Errorf("policy %s has a nil rule at index %d", p.ID, i)
		}
	}
	if _, exists := e.policies[p.ID]; exists {
		return fmt.Errorf("policy already registered: %s", p.ID)
	}
	e.policies[p.ID] = p
	return nil
}

// RegisterLinkageResolver installs or overrides a plain (non-delegating)
// linkage resolver.
func (e *Engine) RegisterLinkageResolver(pred LinkagePredicate, r *LinkageResolver) error {
	if r == nil || r.Resolve == nil {
		return fmt.Errorf("linkage resolver for %s is nil", pred)
	}
	if isDelegatingPredicate(pred) {
		return fmt.Errorf("predicate %s is delegating and cannot be overridden", pred)
	}
	e.resolvers[pred] = r
	return nil
}

// RegisterEntityLoader installs the loader for an entity type. Registering
// twice logs a warning and overwrites, which is acceptable for a fixed
// startup registration phase.
func (e *Engine) RegisterEntityLoader(et EntityType, loader EntityLoader) {
	if loader == nil {
		return
	}
	if _, exists := e.loaders[et]; exists {
		e.logger.Info("entity loader overwritten", "entity_type", string(et))
	}
	e.loaders[et] = loader
}

// ResetForTest clears all registries and the cache. Test harness use only.
func (e *Engine) ResetForTest() {
	e.policies = make(map[string]*Policy)
	e.resolvers = make(map[LinkagePredicate]*LinkageResolver)
	e.loaders = make(map[EntityType]EntityLoader)
	registerBuiltinResolvers(e)
	registerBuiltinLoaders(e)
	e.cache.Clear()
}

// ============================================================================
// EVALUATION FACADE
// ============================================================================

type evalOptions struct {
	skipCache bool
}

// EvalOption tweaks a single Evaluate call.
type EvalOption func(*evalOptions)

// SkipCache bypasses the decision cache for this call. The outcome is still
// written back to the cache.
func SkipCache() EvalOption {
	return func(o *evalOptions) { o.skipCache = true }
}

// Evaluate decides whether user may act under the named policy, optionally
// scoped to an entity. Denials are values; a non-nil error means the
// decision could not be determined (storage failure) and must not be
// conflated with a deny.
func (e *Engine) Evaluate(ctx context.Context, user *User, policyID, entityID string, opts ...EvalOption) (*Decision, error) {
	var o evalOptions
	for _, opt := range opts {
		opt(&o)
	}

	p, ok := e.policies[policyID]
	if !ok {
		e.logger.Error("unknown policy", "policy", policyID)
		return e.deny(fmt.Sprintf("Unknown policy: %s", policyID)), nil
	}

	if policyRequiresEntity(p) && entityID == "" {
		return e.deny(fmt.Sprintf("Entity context required for policy: %s", policyID)), nil
	}

	var key string
	if user != nil {
		key = utils.BuildKey(user.ID, policyID, entityID)
		if !o.skipCache {
			if d, hit := e.cache.Get(key); hit {
				return &d, nil
			}
		}
	}

	if user == nil {
		if hasPublicRule(p) {
			return e.grant("Public access"), nil
		}
		return e.deny("Authentication required"), nil
	}

	isAdmin, err := e.permissions.IsAdmin(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("admin check for user %s: %w", user.ID, err)
	}

	var dec *Decision
	if isAdmin {
		dec, err = e.evaluateAdmin(ctx, p)
	} else {
		dec, err = e.evaluateRules(ctx, user, p, entityID)
	}
	if err != nil {
		return nil, err
	}

	e.cache.Set(key, *dec)
	e.logDecision(user, policyID, entityID, dec)
	return dec, nil
}

// evaluateAdmin applies the admin bypass: permissions, linkages and
// attributes are ignored, but any component requirement embedded in a rule
// is still enforced. A rule with failing components does not deny outright;
// the next rule is tried, mirroring the OR semantics across rules.
func (e *Engine) evaluateAdmin(ctx context.Context, p *Policy) (*Decision, error) {
	for _, rule := range p.Rules {
		allEnabled := true
		for _, comp := range ruleComponents(rule) {
			enabled, err := e.components.IsEnabled(ctx, comp)
			if err != nil {
				return nil, fmt.Errorf("component check %s: %w", comp, err)
			}
			if !enabled {
				allEnabled = false
				break
			}
		}
		if allEnabled {
			return e.grant("Admin access"), nil
		}
	}
	return e.deny("No matching access rules"), nil
}

// evaluateRules runs the policy's rule list in order; the first passing rule
// grants.
func (e *Engine) evaluateRules(ctx context.Context, user *User, p *Policy, entityID string) (*Decision, error) {
	ec := newEvaluationContext(user, p.ID, e.entityTypeFor(p), entityID)
	passed, reason, err := e.evaluatePolicyRules(ctx, p, ec)
	if err != nil {
		return nil, err
	}
	if passed {
		return e.grant(reason), nil
	}
	e.logger.Debug("access denied", "policy", p.ID, "user", user.ID, "detail", reason)
	return e.deny("No matching access rules"), nil
}

// EvaluateBatch evaluates one policy against many entity ids concurrently
// and returns a decision per entity. The decision cache is the only shared
// state between the fan-out evaluations.
func (e *Engine) EvaluateBatch(ctx context.Context, user *User, policyID string, entityIDs []string) (map[string]*Decision, error) {
	results := make(map[string]*Decision, len(entityIDs))
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	sem := make(chan struct{}, e.batchWorkers)
	for _, id := range entityIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(entityID string) {
			defer wg.Done()
			defer func() { <-sem }()
			dec, err := e.Evaluate(ctx, user, policyID, entityID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			results[entityID] = dec
		}(id)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// ============================================================================
// CACHE OPERATIONS
// ============================================================================

// InvalidateCache removes cached decisions matching the pattern and returns
// how many entries were dropped.
func (e *Engine) InvalidateCache(pattern InvalidationPattern) int {
	return e.cache.Invalidate(pattern)
}

func (e *Engine) ClearCache() {
	e.cache.Clear()
}

func (e *Engine) CacheStats() CacheStats {
	return e.cache.Stats()
}

// ============================================================================
// HELPERS
// ============================================================================

func (e *Engine) grant(reason string) *Decision {
	return &Decision{Granted: true, Reason: reason, EvaluatedAt: e.now()}
}

func (e *Engine) deny(reason string) *Decision {
	return &Decision{Granted: false, Reason: reason, EvaluatedAt: e.now()}
}

// entityTypeFor returns the policy's declared entity type, or infers one
// from the first linkage predicate found in its rule tree.
func (e *Engine) entityTypeFor(p *Policy) EntityType {
	if p.EntityType != "" {
		return p.EntityType
	}
	for _, r := range p.Rules {
		if et, ok := inferEntityType(r); ok {
			return et
		}
	}
	return ""
}

func inferEntityType(r *Rule) (EntityType, bool) {
	if r == nil {
		return "", false
	}
	if r.Condition != nil && r.Condition.Linkage != "" {
		if et, ok := predicateEntityTypes[r.Condition.Linkage]; ok {
			return et, true
		}
	}
	for _, sub := range r.AnyOf {
		if et, ok := inferEntityType(sub); ok {
			return et, true
		}
	}
	for _, sub := range r.AllOf {
		if et, ok := inferEntityType(sub); ok {
			return et, true
		}
	}
	return "", false
}

// policyRequiresEntity reports whether any condition in the policy's own
// rule tree needs an entity context.
func policyRequiresEntity(p *Policy) bool {
	for _, r := range p.Rules {
		if ruleRequiresEntity(r) {
			return true
		}
	}
	return false
}

func ruleRequiresEntity(r *Rule) bool {
	if r == nil {
		return false
	}
	if r.Condition != nil && (r.Condition.Linkage != "" || len(r.Condition.Attributes) > 0) {
		return true
	}
	for _, sub := range r.AnyOf {
		if ruleRequiresEntity(sub) {
			return true
		}
	}
	for _, sub := range r.AllOf {
		if ruleRequiresEntity(sub) {
			return true
		}
	}
	return false
}

// hasPublicRule reports whether a top-level rule is a bare
// authenticated:false condition. A condition carrying any other requirement
// (permission, component, linkage, attributes, delegation) never grants
// anonymously; those checks need an authenticated evaluation pass.
func hasPublicRule(p *Policy) bool {
	for _, r := range p.Rules {
		if r == nil || r.Condition == nil {
			continue
		}
		c := r.Condition
		if c.Authenticated == nil || *c.Authenticated {
			continue
		}
		if c.Permission != "" || len(c.AnyPermission) > 0 || len(c.AllPermissions) > 0 ||
			c.Component != "" || c.Linkage != "" || len(c.Attributes) > 0 || c.Policy != "" {
			continue
		}
		return true
	}
	return false
}

// ruleComponents collects every component requirement in a rule subtree.
func ruleComponents(r *Rule) []string {
	if r == nil {
		return nil
	}
	var comps []string
	if r.Condition != nil && r.Condition.Component != "" {
		comps = append(comps, r.Condition.Component)
	}
	for _, sub := range r.AnyOf {
		comps = append(comps, ruleComponents(sub)...)
	}
	for _, sub := range r.AllOf {
		comps = append(comps, ruleComponents(sub)...)
	}
	return comps
}

func (e *Engine) logDecision(user *User, policyID, entityID string, dec *Decision) {
	keyvals := []any{
		"user", user.ID,
		"policy", policyID,
		"entity", entityID,
		"granted", dec.Granted,
		"reason", dec.Reason,
	}
	if e.traceIDFunc != nil {
		keyvals = append(keyvals, "trace_id", e.traceIDFunc())
	}
	e.logger.Info("access decision", keyvals...)
}
