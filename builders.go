package policy

// Builders provide a fluent API for assembling Policies, Rules and Conditions

// PolicyBuilder builds a Policy
type PolicyBuilder struct {
	p *Policy
}

func NewPolicyBuilder() *PolicyBuilder {
	return &PolicyBuilder{p: &Policy{Rules: []*Rule{}}}
}

func (b *PolicyBuilder) ID(id string) *PolicyBuilder            { b.p.ID = id; return b }
func (b *PolicyBuilder) Name(n string) *PolicyBuilder           { b.p.Name = n; return b }
func (b *PolicyBuilder) Entity(et EntityType) *PolicyBuilder    { b.p.EntityType = et; return b }
func (b *PolicyBuilder) Rule(r *Rule) *PolicyBuilder            { b.p.Rules = append(b.p.Rules, r); return b }
func (b *PolicyBuilder) Allow(c *ConditionBuilder) *PolicyBuilder {
	b.p.Rules = append(b.p.Rules, c.Rule())
	return b
}
func (b *PolicyBuilder) Build() *Policy { return b.p }

// AnyOf composes sub-rules with OR semantics.
func AnyOf(rules ...*Rule) *Rule { return &Rule{AnyOf: rules} }

// AllOf composes sub-rules with AND semantics.
func AllOf(rules ...*Rule) *Rule { return &Rule{AllOf: rules} }

// ConditionBuilder builds a single leaf condition
type ConditionBuilder struct {
	c *Condition
}

func NewConditionBuilder() *ConditionBuilder { return &ConditionBuilder{c: &Condition{}} }

func (b *ConditionBuilder) Authenticated(required bool) *ConditionBuilder {
	b.c.Authenticated = &required
	return b
}
func (b *ConditionBuilder) Permission(key string) *ConditionBuilder { b.c.Permission = key; return b }
func (b *ConditionBuilder) AnyPermission(keys ...string) *ConditionBuilder {
	b.c.AnyPermission = append(b.c.AnyPermission, keys...)
	return b
}
func (b *ConditionBuilder) AllPermissions(keys ...string) *ConditionBuilder {
	b.c.AllPermissions = append(b.c.AllPermissions, keys...)
	return b
}
func (b *ConditionBuilder) Component(name string) *ConditionBuilder { b.c.Component = name; return b }
func (b *ConditionBuilder) Linkage(pred LinkagePredicate) *ConditionBuilder {
	b.c.Linkage = pred
	return b
}
func (b *ConditionBuilder) Delegate(policyID string) *ConditionBuilder {
	b.c.Policy = policyID
	return b
}
func (b *ConditionBuilder) AttrEq(field string, value any) *ConditionBuilder {
	b.c.Attributes = append(b.c.Attributes, AttributePredicate{Field: field, Op: OpEq, Value: value})
	return b
}
func (b *ConditionBuilder) AttrNeq(field string, value any) *ConditionBuilder {
	b.c.Attributes = append(b.c.Attributes, AttributePredicate{Field: field, Op: OpNeq, Value: value})
	return b
}
func (b *ConditionBuilder) Build() *Condition { return b.c }
func (b *ConditionBuilder) Rule() *Rule       { return &Rule{Condition: b.c} }
