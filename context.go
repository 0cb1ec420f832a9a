package policy

// EvaluationContext carries the state of one top-level Evaluate call through
// the rule tree. A fresh context is built per call and never shared across
// concurrent evaluations.
type EvaluationContext struct {
	User       *User
	PolicyID   string
	EntityType EntityType
	EntityID   string

	// evaluating holds "policy" or "policy:entity" keys for every delegation
	// currently in progress on this branch. It is cloned, never mutated in
	// place, when descending into a delegated policy, so sibling branches of
	// an AND/OR tree do not observe each other's in-progress state.
	evaluating map[string]struct{}

	// records caches loaded entity records for the whole evaluation tree,
	// keyed "entityType:entityID". Shared across delegation descents so the
	// same entity is fetched at most once per evaluation.
	records map[string]map[string]any
}

func newEvaluationContext(user *User, policyID string, entityType EntityType, entityID string) *EvaluationContext {
	key := policyID
	if entityID != "" {
		key = policyID + ":" + entityID
	}
	return &EvaluationContext{
		User:       user,
		PolicyID:   policyID,
		EntityType: entityType,
		EntityID:   entityID,
		evaluating: map[string]struct{}{key: {}},
		records:    make(map[string]map[string]any),
	}
}

// isEvaluating reports whether the given delegation key is already on this
// branch's chain.
func (ec *EvaluationContext) isEvaluating(key string) bool {
	_, ok := ec.evaluating[key]
	return ok
}

// descend builds the context for a delegated policy evaluation. The cycle
// set is structurally copied with the new key added; the record cache is
// shared by reference.
func (ec *EvaluationContext) descend(policyID string, entityType EntityType, entityID, cycleKey string) *EvaluationContext {
	evaluating := make(map[string]struct{}, len(ec.evaluating)+1)
	for k := range ec.evaluating {
		evaluating[k] = struct{}{}
	}
	evaluating[cycleKey] = struct{}{}
	return &EvaluationContext{
		User:       ec.User,
		PolicyID:   policyID,
		EntityType: entityType,
		EntityID:   entityID,
		evaluating: evaluating,
		records:    ec.records,
	}
}

// LinkageContext is the slice of evaluation state handed to a linkage
// resolver.
type LinkageContext struct {
	UserID     string
	UserEmail  string
	EntityType EntityType
	EntityID   string
}

func (ec *EvaluationContext) linkageContext() LinkageContext {
	lc := LinkageContext{EntityType: ec.EntityType, EntityID: ec.EntityID}
	if ec.User != nil {
		lc.UserID = ec.User.ID
		lc.UserEmail = ec.User.Email
	}
	return lc
}
