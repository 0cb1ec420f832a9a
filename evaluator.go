package policy

import (
	"context"
	"fmt"
	"strings"
)

// ============================================================================
// RULE / CONDITION EVALUATOR
// ============================================================================

// evaluatePolicyRules applies OR semantics across a policy's rule list:
// the first passing rule wins; if none pass, the child reasons are joined
// for diagnostics.
func (e *Engine) evaluatePolicyRules(ctx context.Context, p *Policy, ec *EvaluationContext) (bool, string, error) {
	reasons := make([]string, 0, len(p.Rules))
	for _, rule := range p.Rules {
		passed, reason, err := e.evaluateRule(ctx, rule, ec)
		if err != nil {
			return false, "", err
		}
		if passed {
			return true, reason, nil
		}
		reasons = append(reasons, reason)
	}
	return false, strings.Join(reasons, "; "), nil
}

// evaluateRule walks one boolean-composition node. AnyOf short-circuits on
// the first success, AllOf on the first failure.
func (e *Engine) evaluateRule(ctx context.Context, r *Rule, ec *EvaluationContext) (bool, string, error) {
	switch {
	case r == nil:
		return false, "Empty rule", nil
	case len(r.AnyOf) > 0:
		reasons := make([]string, 0, len(r.AnyOf))
		for _, sub := range r.AnyOf {
			passed, reason, err := e.evaluateRule(ctx, sub, ec)
			if err != nil {
				return false, "", err
			}
			if passed {
				return true, reason, nil
			}
			reasons = append(reasons, reason)
		}
		return false, strings.Join(reasons, "; "), nil
	case len(r.AllOf) > 0:
		for _, sub := range r.AllOf {
			passed, reason, err := e.evaluateRule(ctx, sub, ec)
			if err != nil {
				return false, "", err
			}
			if !passed {
				return false, reason, nil
			}
		}
		return true, "All conditions met", nil
	case r.Condition != nil:
		return e.evaluateCondition(ctx, r.Condition, ec)
	default:
		return false, "Empty rule", nil
	}
}

// evaluateCondition checks each present field in a fixed order, failing fast
// with a reason naming the sub-check that failed. The order matters only for
// diagnostic clarity since every present field must pass.
func (e *Engine) evaluateCondition(ctx context.Context, c *Condition, ec *EvaluationContext) (bool, string, error) {
	if c.Authenticated != nil && *c.Authenticated && ec.User == nil {
		return false, "Authentication required", nil
	}

	if c.Component != "" {
		enabled, err := e.components.IsEnabled(ctx, c.Component)
		if err != nil {
			return false, "", fmt.Errorf("component check %s: %w", c.Component, err)
		}
		if !enabled {
			return false, fmt.Sprintf("Component '%s' is not enabled", c.Component), nil
		}
	}

	if c.Permission != "" {
		held, reason, err := e.checkPermission(ctx, ec, c.Permission)
		if err != nil || !held {
			return false, reason, err
		}
	}

	if len(c.AnyPermission) > 0 {
		held := false
		for _, key := range c.AnyPermission {
			ok, _, err := e.checkPermission(ctx, ec, key)
			if err != nil {
				return false, "", err
			}
			if ok {
				held = true
				break
			}
		}
		if !held {
			return false, fmt.Sprintf("Missing any of permissions: %s", strings.Join(c.AnyPermission, ", ")), nil
		}
	}

	if len(c.AllPermissions) > 0 {
		for _, key := range c.AllPermissions {
			ok, reason, err := e.checkPermission(ctx, ec, key)
			if err != nil || !ok {
				return false, reason, err
			}
		}
	}

	if c.Linkage != "" {
		passed, reason, err := e.evaluateLinkage(ctx, c.Linkage, ec)
		if err != nil || !passed {
			return false, reason, err
		}
	}

	if c.Policy != "" {
		passed, reason, err := e.evaluateDelegation(ctx, c.Policy, ec)
		if err != nil || !passed {
			return false, reason, err
		}
	}

	if len(c.Attributes) > 0 {
		passed, reason, err := e.evaluateAttributes(ctx, c.Attributes, ec)
		if err != nil || !passed {
			return false, reason, err
		}
	}

	return true, "Conditions met", nil
}

func (e *Engine) checkPermission(ctx context.Context, ec *EvaluationContext, key string) (bool, string, error) {
	if ec.User == nil {
		return false, "Authentication required", nil
	}
	held, err := e.permissions.HasPermission(ctx, ec.User.ID, key)
	if err != nil {
		return false, "", fmt.Errorf("permission check %s: %w", key, err)
	}
	if !held {
		return false, fmt.Sprintf("Missing permission: %s", key), nil
	}
	return true, "", nil
}

// ============================================================================
// LINKAGE
// ============================================================================

func (e *Engine) evaluateLinkage(ctx context.Context, pred LinkagePredicate, ec *EvaluationContext) (bool, string, error) {
	if ec.EntityID == "" || ec.EntityType == "" {
		return false, "Linkage check requires entity context", nil
	}

	// Delegating predicates never consult the plain resolver table.
	if isDelegatingPredicate(pred) {
		return e.resolveDelegatingLinkage(ctx, pred, ec)
	}

	r, ok := e.resolvers[pred]
	if !ok {
		e.logger.Error("unknown linkage predicate", "predicate", string(pred), "policy", ec.PolicyID)
		return false, fmt.Sprintf("Unknown linkage predicate: %s", pred), nil
	}
	// Entity type mismatch means "not applicable", never an error.
	if r.EntityType != ec.EntityType {
		return false, "Linkage check failed", nil
	}

	req := &LinkageRequest{
		LinkageContext: ec.linkageContext(),
		Storage:        e.storage,
		loadEntity: func(ctx context.Context, et EntityType, id string) (map[string]any, error) {
			return e.loadEntityRecord(ctx, ec, et, id)
		},
	}
	linked, err := r.Resolve(ctx, req)
	if err != nil {
		return false, "", fmt.Errorf("linkage %s on %s:%s: %w", pred, ec.EntityType, ec.EntityID, err)
	}
	if !linked {
		return false, "Linkage check failed", nil
	}
	return true, "Linkage check passed", nil
}

// ============================================================================
// DELEGATION
// ============================================================================

// evaluateDelegation hands the decision to another registered policy,
// preserving the current entity id. The cycle guard is a hard invariant: a
// policy:entity pair already being evaluated on this branch denies
// immediately instead of recursing.
func (e *Engine) evaluateDelegation(ctx context.Context, targetID string, ec *EvaluationContext) (bool, string, error) {
	cycleKey := targetID
	if ec.EntityID != "" {
		cycleKey = targetID + ":" + ec.EntityID
	}
	if ec.isEvaluating(cycleKey) {
		e.logger.Error("policy delegation cycle", "policy", targetID, "from", ec.PolicyID)
		return false, fmt.Sprintf("Cycle detected: %s", targetID), nil
	}

	target, ok := e.policies[targetID]
	if !ok {
		e.logger.Error("unknown delegated policy", "policy", targetID, "from", ec.PolicyID)
		return false, fmt.Sprintf("Unknown policy: %s", targetID), nil
	}

	et := e.entityTypeFor(target)
	if et == "" {
		et = ec.EntityType
	}
	nested := ec.descend(targetID, et, ec.EntityID, cycleKey)
	passed, reason, err := e.evaluatePolicyRules(ctx, target, nested)
	if err != nil {
		return false, "", err
	}
	if !passed {
		return false, fmt.Sprintf("Policy '%s' did not grant access: %s", targetID, reason), nil
	}
	return true, reason, nil
}

// evaluatePolicyAgainst evaluates a policy against a specific entity,
// used by delegating linkage predicates whose target entity differs from
// the one currently under evaluation.
func (e *Engine) evaluatePolicyAgainst(ctx context.Context, targetID string, entityID string, ec *EvaluationContext) (bool, string, error) {
	cycleKey := targetID
	if entityID != "" {
		cycleKey = targetID + ":" + entityID
	}
	if ec.isEvaluating(cycleKey) {
		e.logger.Error("policy delegation cycle", "policy", targetID, "from", ec.PolicyID)
		return false, fmt.Sprintf("Cycle detected: %s", targetID), nil
	}
	target, ok := e.policies[targetID]
	if !ok {
		e.logger.Error("unknown delegated policy", "policy", targetID, "from", ec.PolicyID)
		return false, fmt.Sprintf("Unknown policy: %s", targetID), nil
	}
	et := e.entityTypeFor(target)
	nested := ec.descend(targetID, et, entityID, cycleKey)
	return e.evaluatePolicyRules(ctx, target, nested)
}

// ============================================================================
// ATTRIBUTE PREDICATES
// ============================================================================

func (e *Engine) evaluateAttributes(ctx context.Context, preds []AttributePredicate, ec *EvaluationContext) (bool, string, error) {
	if ec.EntityID == "" || ec.EntityType == "" {
		return false, "Attribute check requires entity context", nil
	}
	if _, ok := e.loaders[ec.EntityType]; !ok {
		e.logger.Error("no entity loader registered", "entity_type", string(ec.EntityType), "policy", ec.PolicyID)
		return false, fmt.Sprintf("No entity loader registered for type: %s", ec.EntityType), nil
	}
	record, err := e.loadEntityRecord(ctx, ec, ec.EntityType, ec.EntityID)
	if err != nil {
		return false, "", err
	}
	if record == nil {
		return false, fmt.Sprintf("Entity not found: %s:%s", ec.EntityType, ec.EntityID), nil
	}

	for _, p := range preds {
		actual := record[p.Field]
		switch p.Op {
		case OpEq:
			if !attrValuesEqual(actual, p.Value) {
				return false, fmt.Sprintf("Attribute check failed: %s %s %v (actual: %v)", p.Field, p.Op, p.Value, actual), nil
			}
		case OpNeq:
			if attrValuesEqual(actual, p.Value) {
				return false, fmt.Sprintf("Attribute check failed: %s %s %v (actual: %v)", p.Field, p.Op, p.Value, actual), nil
			}
		default:
			return false, fmt.Sprintf("Unknown attribute operator: %s", p.Op), nil
		}
	}
	return true, "Attribute checks passed", nil
}

// loadEntityRecord fetches an entity record through the per-evaluation
// cache, so the same entity is loaded at most once per evaluation tree.
// Missing entities are cached as nil to avoid repeated lookups.
func (e *Engine) loadEntityRecord(ctx context.Context, ec *EvaluationContext, et EntityType, id string) (map[string]any, error) {
	key := string(et) + ":" + id
	if rec, ok := ec.records[key]; ok {
		return rec, nil
	}
	loader, ok := e.loaders[et]
	if !ok {
		return nil, nil
	}
	rec, err := loader(ctx, e.storage, id)
	if err != nil {
		return nil, fmt.Errorf("load %s:%s: %w", et, id, err)
	}
	ec.records[key] = rec
	return rec, nil
}

// attrValuesEqual compares an entity field to a config literal. YAML and
// JSON decode numbers differently, so numeric values compare by magnitude.
func attrValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return as == bs
		}
		return false
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
