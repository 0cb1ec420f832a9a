package policy

import (
	"time"
)

// ============================================================================
// DOMAIN OBJECTS
// ============================================================================

// User represents the authenticated caller an access decision is made for.
// A nil *User means the request is unauthenticated.
type User struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id,omitempty"`
	Email      string `json:"email"`
	Name       string `json:"name,omitempty"`
}

// EntityType identifies the kind of domain entity a policy is scoped to.
type EntityType string

const (
	EntityWorker     EntityType = "worker"
	EntityEmployer   EntityType = "employer"
	EntityContact    EntityType = "contact"
	EntityCardcheck  EntityType = "cardcheck"
	EntityESignature EntityType = "esignature"
	EntityFile       EntityType = "file"
	EntityBan        EntityType = "ban"
	EntityDispatch   EntityType = "dispatch"
)

// LinkagePredicate names a relationship check between a user and an entity.
// The set is closed: lookups go through typed tables, never raw strings.
type LinkagePredicate string

const (
	LinkageOwnsWorker            LinkagePredicate = "ownsWorker"
	LinkageOwnsContact           LinkagePredicate = "ownsContact"
	LinkageEmployerContact       LinkagePredicate = "employerContact"
	LinkageProviderWorkerBenefit LinkagePredicate = "providerWorkerBenefit"
	LinkageOwnsDispatch          LinkagePredicate = "ownsDispatch"
	LinkageBanSubject            LinkagePredicate = "banSubject"

	// Delegating predicates resolve by evaluating another policy against a
	// related entity instead of answering directly.
	LinkageCardcheckWorkerAccess LinkagePredicate = "cardcheckWorkerAccess"
	LinkageESigEntityAccess      LinkagePredicate = "esigEntityAccess"
	LinkageFileEntityAccess      LinkagePredicate = "fileEntityAccess"
)

// AttrOperator is the comparison applied by an attribute predicate.
type AttrOperator string

const (
	OpEq  AttrOperator = "eq"
	OpNeq AttrOperator = "neq"
)

// AttributePredicate compares a field of the loaded entity record to a literal.
type AttributePredicate struct {
	Field string       `json:"field" yaml:"field"`
	Op    AttrOperator `json:"op" yaml:"op"`
	Value any          `json:"value" yaml:"value"`
}

// Condition is a set of simultaneously required checks. Every field that is
// present must hold for the condition to pass.
type Condition struct {
	// Authenticated, when explicitly set to false, marks the condition as
	// usable by unauthenticated requests.
	Authenticated  *bool                `json:"authenticated,omitempty" yaml:"authenticated,omitempty"`
	Permission     string               `json:"permission,omitempty" yaml:"permission,omitempty"`
	AnyPermission  []string             `json:"any_permission,omitempty" yaml:"any_permission,omitempty"`
	AllPermissions []string             `json:"all_permissions,omitempty" yaml:"all_permissions,omitempty"`
	Component      string               `json:"component,omitempty" yaml:"component,omitempty"`
	Linkage        LinkagePredicate     `json:"linkage,omitempty" yaml:"linkage,omitempty"`
	Attributes     []AttributePredicate `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	// Policy delegates the decision to another registered policy, evaluated
	// against the current entity id.
	Policy string `json:"policy,omitempty" yaml:"policy,omitempty"`
}

// Rule is a boolean-composition node: exactly one of Condition, AnyOf or
// AllOf should be set. Rules nest arbitrarily.
type Rule struct {
	Condition *Condition `json:"condition,omitempty" yaml:"condition,omitempty"`
	AnyOf     []*Rule    `json:"any_of,omitempty" yaml:"any_of,omitempty"`
	AllOf     []*Rule    `json:"all_of,omitempty" yaml:"all_of,omitempty"`
}

// Policy is a named, ordered collection of rules. Access is granted if any
// rule passes. Policies are immutable once registered.
type Policy struct {
	ID         string     `json:"id" yaml:"id"`
	Name       string     `json:"name" yaml:"name"`
	EntityType EntityType `json:"entity_type,omitempty" yaml:"entity_type,omitempty"`
	Rules      []*Rule    `json:"rules" yaml:"rules"`
}

// Decision is the outcome of an evaluation. Immutable once produced and
// cached by value.
type Decision struct {
	Granted     bool      `json:"granted"`
	Reason      string    `json:"reason"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// ============================================================================
// DOMAIN RECORDS
// ============================================================================

// Contact is a person record in the directory. Workers, employer contacts
// and provider contacts all hang off contacts.
type Contact struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type Worker struct {
	ID        string `json:"id"`
	ContactID string `json:"contact_id"`
	Local     string `json:"local,omitempty"`
	Status    string `json:"status,omitempty"`
}

type Employer struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

type Cardcheck struct {
	ID         string    `json:"id"`
	WorkerID   string    `json:"worker_id"`
	EmployerID string    `json:"employer_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	SignedAt   time.Time `json:"signed_at,omitempty"`
}

// ESignature is a pending or completed signature request attached to a
// document of some type (cardcheck, dispatch, ...).
type ESignature struct {
	ID           string `json:"id"`
	DocumentType string `json:"document_type"`
	DocumentID   string `json:"document_id"`
	SignerEmail  string `json:"signer_email,omitempty"`
	Status       string `json:"status,omitempty"`
}

// File is a stored document attached to another entity.
type File struct {
	ID         string `json:"id"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Name       string `json:"name,omitempty"`
}

// Ban is a do-not-contact record keyed by contact email.
type Ban struct {
	ID           string    `json:"id"`
	ContactEmail string    `json:"contact_email"`
	Reason       string    `json:"reason,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

type Dispatch struct {
	ID         string `json:"id"`
	WorkerID   string `json:"worker_id"`
	EmployerID string `json:"employer_id,omitempty"`
	Status     string `json:"status,omitempty"`
}
