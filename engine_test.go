package policy_test

import (
	"context"
	"testing"
	"time"

	"github.com/unionhall/policy"
	"github.com/unionhall/policy/stores"
)

type testEnv struct {
	engine     *policy.Engine
	directory  *stores.MemoryDirectory
	perms      *stores.MemoryPermissionStore
	components *stores.MemoryComponentChecker
}

func newTestEnv(t *testing.T, opts ...policy.EngineOption) *testEnv {
	t.Helper()
	env := &testEnv{
		directory:  stores.NewMemoryDirectory(),
		perms:      stores.NewMemoryPermissionStore(),
		components: stores.NewMemoryComponentChecker(),
	}
	eng, err := policy.NewEngine(env.directory, env.perms, env.components, opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	env.engine = eng
	return env
}

func (env *testEnv) register(t *testing.T, p *policy.Policy) {
	t.Helper()
	if err := env.engine.RegisterPolicy(p); err != nil {
		t.Fatalf("register policy %s: %v", p.ID, err)
	}
}

func permissionPolicy(id, perm string) *policy.Policy {
	return policy.NewPolicyBuilder().ID(id).
		Allow(policy.NewConditionBuilder().Permission(perm)).
		Build()
}

func TestEvaluateUnknownPolicy(t *testing.T) {
	env := newTestEnv(t)
	user := &policy.User{ID: "u1", Email: "u1@example.org"}

	dec, err := env.engine.Evaluate(context.Background(), user, "nope", "")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if dec.Granted {
		t.Fatalf("expected deny for unknown policy")
	}
	if dec.Reason != "Unknown policy: nope" {
		t.Fatalf("unexpected reason: %q", dec.Reason)
	}
}

func TestEvaluatePermissionGrant(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, permissionPolicy("worker.manage", "worker.manage"))
	env.perms.AddUser(&policy.User{ID: "u1", Email: "u1@example.org"})
	env.perms.Grant("u1", "worker.manage")

	dec, err := env.engine.Evaluate(context.Background(), &policy.User{ID: "u1", Email: "u1@example.org"}, "worker.manage", "")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !dec.Granted {
		t.Fatalf("expected grant, got %q", dec.Reason)
	}

	dec, _ = env.engine.Evaluate(context.Background(), &policy.User{ID: "u2", Email: "u2@example.org"}, "worker.manage", "")
	if dec.Granted {
		t.Fatalf("expected deny for user without permission")
	}
	if dec.Reason != "No matching access rules" {
		t.Fatalf("unexpected reason: %q", dec.Reason)
	}
}

func TestUnauthenticatedDeniedWithoutPublicRule(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, permissionPolicy("worker.view", "worker.view"))

	dec, err := env.engine.Evaluate(context.Background(), nil, "worker.view", "")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if dec.Granted {
		t.Fatalf("expected deny for unauthenticated user")
	}
	if dec.Reason != "Authentication required" {
		t.Fatalf("unexpected reason: %q", dec.Reason)
	}
}

func TestUnauthenticatedAllowedByPublicRule(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, policy.NewPolicyBuilder().ID("jobs.list").
		Allow(policy.NewConditionBuilder().Authenticated(false)).
		Build())

	dec, err := env.engine.Evaluate(context.Background(), nil, "jobs.list", "")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !dec.Granted {
		t.Fatalf("expected public grant, got %q", dec.Reason)
	}
	if dec.Reason != "Public access" {
		t.Fatalf("unexpected reason: %q", dec.Reason)
	}
}

func TestPublicRuleMustBeBare(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, policy.NewPolicyBuilder().ID("jobs.offline").
		Allow(policy.NewConditionBuilder().Authenticated(false).Component("offline")).
		Build())
	env.register(t, policy.NewPolicyBuilder().ID("jobs.scoped").
		Allow(policy.NewConditionBuilder().Authenticated(false).Permission("jobs.list")).
		Build())

	// authenticated:false only opens the anonymous path when the condition
	// carries no other requirement.
	for _, id := range []string{"jobs.offline", "jobs.scoped"} {
		dec, err := env.engine.Evaluate(context.Background(), nil, id, "")
		if err != nil {
			t.Fatalf("evaluate %s: %v", id, err)
		}
		if dec.Granted {
			t.Fatalf("expected anonymous deny for %s", id)
		}
		if dec.Reason != "Authentication required" {
			t.Fatalf("unexpected reason for %s: %q", id, dec.Reason)
		}
	}

	// Enabling the component does not change that; the gated rule still
	// requires an authenticated evaluation.
	env.components.SetEnabled("offline", true)
	env.engine.ClearCache()
	dec, _ := env.engine.Evaluate(context.Background(), nil, "jobs.offline", "")
	if dec.Granted {
		t.Fatalf("expected anonymous deny with component enabled")
	}
}

func TestEntityContextRequired(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, policy.NewPolicyBuilder().ID("worker.view").Entity(policy.EntityWorker).
		Allow(policy.NewConditionBuilder().Linkage(policy.LinkageOwnsWorker)).
		Build())
	env.perms.AddUser(&policy.User{ID: "u1", Email: "u1@example.org"})

	dec, err := env.engine.Evaluate(context.Background(), &policy.User{ID: "u1", Email: "u1@example.org"}, "worker.view", "")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if dec.Granted {
		t.Fatalf("expected deny without entity context")
	}
	if dec.Reason != "Entity context required for policy: worker.view" {
		t.Fatalf("unexpected reason: %q", dec.Reason)
	}
}

func TestAdminBypass(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, policy.NewPolicyBuilder().ID("worker.manage").Entity(policy.EntityWorker).
		Allow(policy.NewConditionBuilder().Permission("worker.manage").Linkage(policy.LinkageOwnsWorker)).
		Build())
	env.perms.AddUser(&policy.User{ID: "root", Email: "root@example.org"})
	env.perms.SetAdmin("root", true)

	// Admin skips the permission and linkage checks entirely.
	dec, err := env.engine.Evaluate(context.Background(), &policy.User{ID: "root", Email: "root@example.org"}, "worker.manage", "w1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !dec.Granted {
		t.Fatalf("expected admin grant, got %q", dec.Reason)
	}
	if dec.Reason != "Admin access" {
		t.Fatalf("unexpected reason: %q", dec.Reason)
	}
}

func TestAdminBypassStillGatedByComponent(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, policy.NewPolicyBuilder().ID("benefits.manage").
		Allow(policy.NewConditionBuilder().Permission("benefits.manage").Component("benefits")).
		Build())
	env.perms.SetAdmin("root", true)
	root := &policy.User{ID: "root", Email: "root@example.org"}

	dec, err := env.engine.Evaluate(context.Background(), root, "benefits.manage", "")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if dec.Granted {
		t.Fatalf("expected deny while component disabled")
	}

	env.components.SetEnabled("benefits", true)
	env.engine.ClearCache()
	dec, _ = env.engine.Evaluate(context.Background(), root, "benefits.manage", "")
	if !dec.Granted {
		t.Fatalf("expected admin grant once component enabled, got %q", dec.Reason)
	}
}

func TestAdminBypassTriesNextRuleOnDisabledComponent(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, policy.NewPolicyBuilder().ID("mixed.view").
		Allow(policy.NewConditionBuilder().Permission("a").Component("offline")).
		Allow(policy.NewConditionBuilder().Permission("b")).
		Build())
	env.perms.SetAdmin("root", true)

	dec, err := env.engine.Evaluate(context.Background(), &policy.User{ID: "root", Email: "root@example.org"}, "mixed.view", "")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !dec.Granted {
		t.Fatalf("expected grant via component-free rule, got %q", dec.Reason)
	}
}

func TestDecisionCacheHit(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, permissionPolicy("worker.manage", "worker.manage"))
	env.perms.Grant("u1", "worker.manage")
	user := &policy.User{ID: "u1", Email: "u1@example.org"}

	dec, err := env.engine.Evaluate(context.Background(), user, "worker.manage", "")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !dec.Granted {
		t.Fatalf("expected grant, got %q", dec.Reason)
	}

	// The cached decision survives a permission revocation until invalidated.
	env.perms.Revoke("u1", "worker.manage")
	dec, err = env.engine.Evaluate(context.Background(), user, "worker.manage", "")
	if err != nil {
		t.Fatalf("evaluate from cache: %v", err)
	}
	if !dec.Granted {
		t.Fatalf("expected cached grant, got %q", dec.Reason)
	}

	env.engine.InvalidateCache(policy.InvalidationPattern{UserID: "u1"})
	dec, _ = env.engine.Evaluate(context.Background(), user, "worker.manage", "")
	if dec.Granted {
		t.Fatalf("expected deny after invalidation")
	}
}

func TestSkipCacheReevaluates(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, permissionPolicy("worker.manage", "worker.manage"))
	env.perms.Grant("u1", "worker.manage")
	user := &policy.User{ID: "u1", Email: "u1@example.org"}

	if dec, _ := env.engine.Evaluate(context.Background(), user, "worker.manage", ""); !dec.Granted {
		t.Fatalf("expected initial grant")
	}

	env.perms.Revoke("u1", "worker.manage")
	dec, err := env.engine.Evaluate(context.Background(), user, "worker.manage", "", policy.SkipCache())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if dec.Granted {
		t.Fatalf("expected deny after revocation with SkipCache")
	}
}

func TestInvalidateCachePattern(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, permissionPolicy("worker.manage", "worker.manage"))
	env.register(t, permissionPolicy("employer.manage", "employer.manage"))
	env.perms.Grant("u1", "worker.manage", "employer.manage")
	user := &policy.User{ID: "u1", Email: "u1@example.org"}

	for _, id := range []string{"worker.manage", "employer.manage"} {
		if _, err := env.engine.Evaluate(context.Background(), user, id, ""); err != nil {
			t.Fatalf("evaluate %s: %v", id, err)
		}
	}
	if got := env.engine.CacheStats().Size; got != 2 {
		t.Fatalf("expected 2 cached decisions, got %d", got)
	}

	n := env.engine.InvalidateCache(policy.InvalidationPattern{UserID: "u1", PolicyID: "worker.manage"})
	if n != 1 {
		t.Fatalf("expected 1 invalidation, got %d", n)
	}
	if got := env.engine.CacheStats().Size; got != 1 {
		t.Fatalf("expected 1 cached decision left, got %d", got)
	}

	n = env.engine.InvalidateCache(policy.InvalidationPattern{UserID: "u1"})
	if n != 1 {
		t.Fatalf("expected 1 invalidation for user pattern, got %d", n)
	}
}

func TestEvaluateBatch(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, policy.NewPolicyBuilder().ID("worker.view").Entity(policy.EntityWorker).
		Allow(policy.NewConditionBuilder().Linkage(policy.LinkageOwnsWorker)).
		Build())

	env.directory.AddContact(&policy.Contact{ID: "c1", Email: "u1@example.org"})
	env.directory.AddWorker(&policy.Worker{ID: "w1", ContactID: "c1"})
	env.directory.AddWorker(&policy.Worker{ID: "w2", ContactID: "other"})
	env.directory.AddWorker(&policy.Worker{ID: "w3", ContactID: "c1"})
	user := &policy.User{ID: "u1", Email: "u1@example.org"}

	results, err := env.engine.EvaluateBatch(context.Background(), user, "worker.view", []string{"w1", "w2", "w3"})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 decisions, got %d", len(results))
	}
	if !results["w1"].Granted || !results["w3"].Granted {
		t.Fatalf("expected grants for owned workers")
	}
	if results["w2"].Granted {
		t.Fatalf("expected deny for unowned worker")
	}
}

func TestRegisterPolicyRejectsDuplicates(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, permissionPolicy("worker.manage", "worker.manage"))
	if err := env.engine.RegisterPolicy(permissionPolicy("worker.manage", "worker.manage")); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	if err := env.engine.RegisterPolicy(&policy.Policy{ID: "empty"}); err == nil {
		t.Fatalf("expected error for policy without rules")
	}
}

func TestRegisterPolicyRejectsNilRule(t *testing.T) {
	env := newTestEnv(t)
	p := &policy.Policy{ID: "odd", Rules: []*policy.Rule{
		nil,
		policy.NewConditionBuilder().Permission("worker.view").Rule(),
	}}
	if err := env.engine.RegisterPolicy(p); err == nil {
		t.Fatalf("expected error for nil rule element")
	}
}

func TestCacheOptionsRejectReplacedCache(t *testing.T) {
	rc, err := policy.NewRistrettoDecisionCache(1000, 100, 64, time.Minute)
	if err != nil {
		t.Fatalf("ristretto cache: %v", err)
	}

	_, err = policy.NewEngine(stores.NewMemoryDirectory(), stores.NewMemoryPermissionStore(), stores.NewMemoryComponentChecker(),
		policy.WithDecisionCache(rc), policy.WithCacheTTL(time.Minute))
	if err == nil {
		t.Fatalf("expected error for cache ttl after cache replacement")
	}
	_, err = policy.NewEngine(stores.NewMemoryDirectory(), stores.NewMemoryPermissionStore(), stores.NewMemoryComponentChecker(),
		policy.WithDecisionCache(rc), policy.WithCacheSize(10))
	if err == nil {
		t.Fatalf("expected error for cache size after cache replacement")
	}

	// Ordered before the replacement, the knobs apply to the default cache
	// that is then swapped out.
	_, err = policy.NewEngine(stores.NewMemoryDirectory(), stores.NewMemoryPermissionStore(), stores.NewMemoryComponentChecker(),
		policy.WithCacheTTL(time.Minute), policy.WithCacheSize(10), policy.WithDecisionCache(rc))
	if err != nil {
		t.Fatalf("options before replacement: %v", err)
	}
}

func TestRegisterLinkageResolverRejectsDelegating(t *testing.T) {
	env := newTestEnv(t)
	r := &policy.LinkageResolver{EntityType: policy.EntityCardcheck, Resolve: func(ctx context.Context, req *policy.LinkageRequest) (bool, error) {
		return true, nil
	}}
	if err := env.engine.RegisterLinkageResolver(policy.LinkageCardcheckWorkerAccess, r); err == nil {
		t.Fatalf("expected rejection for delegating predicate")
	}
	if err := env.engine.RegisterLinkageResolver("customPredicate", r); err != nil {
		t.Fatalf("register custom resolver: %v", err)
	}
}
