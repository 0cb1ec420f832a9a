package policy

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ============================================================================
// CONFIGURATION
// ============================================================================

// Config is the startup configuration: engine knobs plus the policy set to
// register. Policies loaded this way are frozen once ApplyConfig returns.
type Config struct {
	Version  int            `json:"version" yaml:"version"`
	Engine   EngineConfig   `json:"engine" yaml:"engine"`
	Policies []PolicyConfig `json:"policies" yaml:"policies"`
}

type EngineConfig struct {
	CacheTTL            int64 `json:"cache_ttl_ms" yaml:"cache_ttl_ms"`
	CacheMaxEntries     int   `json:"cache_max_entries" yaml:"cache_max_entries"`
	BatchWorkerCount    int   `json:"batch_worker_count" yaml:"batch_worker_count"`
	RistrettoNumCounter int64 `json:"ristretto_num_counter" yaml:"ristretto_num_counter"`
	RistrettoMaxCost    int64 `json:"ristretto_max_cost" yaml:"ristretto_max_cost"`
	RistrettoBuffer     int64 `json:"ristretto_buffer" yaml:"ristretto_buffer"`
}

// PolicyConfig is the serialized form of a Policy.
type PolicyConfig struct {
	ID         string       `json:"id" yaml:"id"`
	Name       string       `json:"name,omitempty" yaml:"name,omitempty"`
	EntityType string       `json:"entity_type,omitempty" yaml:"entity_type,omitempty"`
	Rules      []RuleConfig `json:"rules" yaml:"rules"`
}

// RuleConfig flattens a leaf condition's fields into the rule node itself,
// which keeps policy YAML shallow. AnyOf/AllOf make the node a composite and
// take precedence over any inline condition fields.
type RuleConfig struct {
	Authenticated  *bool                `json:"authenticated,omitempty" yaml:"authenticated,omitempty"`
	Permission     string               `json:"permission,omitempty" yaml:"permission,omitempty"`
	AnyPermission  []string             `json:"any_permission,omitempty" yaml:"any_permission,omitempty"`
	AllPermissions []string             `json:"all_permissions,omitempty" yaml:"all_permissions,omitempty"`
	Component      string               `json:"component,omitempty" yaml:"component,omitempty"`
	Linkage        string               `json:"linkage,omitempty" yaml:"linkage,omitempty"`
	Policy         string               `json:"policy,omitempty" yaml:"policy,omitempty"`
	Attributes     []AttributePredicate `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	AnyOf          []RuleConfig         `json:"any_of,omitempty" yaml:"any_of,omitempty"`
	AllOf          []RuleConfig         `json:"all_of,omitempty" yaml:"all_of,omitempty"`
}

func (rc RuleConfig) toRule() *Rule {
	if len(rc.AnyOf) > 0 {
		subs := make([]*Rule, 0, len(rc.AnyOf))
		for _, sub := range rc.AnyOf {
			subs = append(subs, sub.toRule())
		}
		return &Rule{AnyOf: subs}
	}
	if len(rc.AllOf) > 0 {
		subs := make([]*Rule, 0, len(rc.AllOf))
		for _, sub := range rc.AllOf {
			subs = append(subs, sub.toRule())
		}
		return &Rule{AllOf: subs}
	}
	return &Rule{Condition: &Condition{
		Authenticated:  rc.Authenticated,
		Permission:     rc.Permission,
		AnyPermission:  rc.AnyPermission,
		AllPermissions: rc.AllPermissions,
		Component:      rc.Component,
		Linkage:        LinkagePredicate(rc.Linkage),
		Policy:         rc.Policy,
		Attributes:     rc.Attributes,
	}}
}

// ToPolicy converts the serialized form into a registrable Policy.
func (pc PolicyConfig) ToPolicy() *Policy {
	rules := make([]*Rule, 0, len(pc.Rules))
	for _, rc := range pc.Rules {
		rules = append(rules, rc.toRule())
	}
	return &Policy{ID: pc.ID, Name: pc.Name, EntityType: EntityType(pc.EntityType), Rules: rules}
}

// Validate reports the structural problems a startup should refuse to run
// with: empty or duplicate policy ids, rule-less policies, unknown linkage
// predicates or attribute operators.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Policies))
	for _, pc := range c.Policies {
		if pc.ID == "" {
			return fmt.Errorf("policy with empty id")
		}
		if seen[pc.ID] {
			return fmt.Errorf("duplicate policy id: %s", pc.ID)
		}
		seen[pc.ID] = true
		if len(pc.Rules) == 0 {
			return fmt.Errorf("policy %s has no rules", pc.ID)
		}
		for i, rc := range pc.Rules {
			if err := rc.validate(); err != nil {
				return fmt.Errorf("policy %s rule %d: %w", pc.ID, i, err)
			}
		}
	}
	return nil
}

func (rc RuleConfig) validate() error {
	if rc.Linkage != "" {
		if _, ok := predicateEntityTypes[LinkagePredicate(rc.Linkage)]; !ok {
			return fmt.Errorf("unknown linkage predicate: %s", rc.Linkage)
		}
	}
	for _, ap := range rc.Attributes {
		switch ap.Op {
		case OpEq, OpNeq:
		default:
			return fmt.Errorf("unknown attribute operator: %s", ap.Op)
		}
	}
	for _, sub := range rc.AnyOf {
		if err := sub.validate(); err != nil {
			return err
		}
	}
	for _, sub := range rc.AllOf {
		if err := sub.validate(); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// LOADING
// ============================================================================

// ConfigLoader loads configuration from the supported formats.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// ApplyConfig validates the configuration, applies the engine settings and
// registers the configured policy set. Startup phase only.
func (e *Engine) ApplyConfig(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if ac, ok := e.cache.(*AccessCache); ok {
		if cfg.Engine.CacheTTL > 0 {
			ac.ttl = time.Duration(cfg.Engine.CacheTTL) * time.Millisecond
		}
		if cfg.Engine.CacheMaxEntries > 0 {
			ac.maxSize = cfg.Engine.CacheMaxEntries
		}
	}
	if cfg.Engine.BatchWorkerCount > 0 {
		e.batchWorkers = cfg.Engine.BatchWorkerCount
	}
	if cfg.Engine.RistrettoNumCounter > 0 {
		ttl := time.Duration(cfg.Engine.CacheTTL) * time.Millisecond
		if err := e.ConfigureRistrettoDecisionCache(cfg.Engine.RistrettoNumCounter, cfg.Engine.RistrettoMaxCost, cfg.Engine.RistrettoBuffer, ttl); err != nil {
			return fmt.Errorf("configure ristretto cache: %w", err)
		}
	}
	for _, pc := range cfg.Policies {
		if err := e.RegisterPolicy(pc.ToPolicy()); err != nil {
			return fmt.Errorf("register policy %s: %w", pc.ID, err)
		}
	}
	return nil
}
