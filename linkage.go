package policy

import (
	"context"
	"fmt"
	"strings"
)

// ============================================================================
// LINKAGE RESOLVER REGISTRY
// ============================================================================

// LinkageRequest is the state handed to a linkage resolver: who the user
// is, which entity is being checked, and read-only access to the directory.
// LoadEntity goes through the per-evaluation record cache.
type LinkageRequest struct {
	LinkageContext
	Storage Storage

	loadEntity func(ctx context.Context, et EntityType, id string) (map[string]any, error)
}

// LoadEntity fetches the attribute record of an entity, at most once per
// evaluation tree.
func (r *LinkageRequest) LoadEntity(ctx context.Context, et EntityType, id string) (map[string]any, error) {
	return r.loadEntity(ctx, et, id)
}

// LinkageResolver answers one relationship predicate for one entity type.
// Resolvers return false for "not linked" or "not applicable"; errors are
// reserved for storage failures.
type LinkageResolver struct {
	EntityType EntityType
	Resolve    func(ctx context.Context, req *LinkageRequest) (bool, error)
}

// predicateEntityTypes maps every predicate to the entity type it operates
// on. The facade uses it to infer a policy's entity type when none is
// declared.
var predicateEntityTypes = map[LinkagePredicate]EntityType{
	LinkageOwnsWorker:            EntityWorker,
	LinkageOwnsContact:           EntityContact,
	LinkageEmployerContact:       EntityEmployer,
	LinkageProviderWorkerBenefit: EntityWorker,
	LinkageOwnsDispatch:          EntityDispatch,
	LinkageBanSubject:            EntityBan,
	LinkageCardcheckWorkerAccess: EntityCardcheck,
	LinkageESigEntityAccess:      EntityESignature,
	LinkageFileEntityAccess:      EntityFile,
}

func isDelegatingPredicate(pred LinkagePredicate) bool {
	switch pred {
	case LinkageCardcheckWorkerAccess, LinkageESigEntityAccess, LinkageFileEntityAccess:
		return true
	}
	return false
}

func registerBuiltinResolvers(e *Engine) {
	e.resolvers[LinkageOwnsWorker] = &LinkageResolver{EntityType: EntityWorker, Resolve: resolveOwnsWorker}
	e.resolvers[LinkageOwnsContact] = &LinkageResolver{EntityType: EntityContact, Resolve: resolveOwnsContact}
	e.resolvers[LinkageEmployerContact] = &LinkageResolver{EntityType: EntityEmployer, Resolve: resolveEmployerContact}
	e.resolvers[LinkageProviderWorkerBenefit] = &LinkageResolver{EntityType: EntityWorker, Resolve: resolveProviderWorkerBenefit}
	e.resolvers[LinkageOwnsDispatch] = &LinkageResolver{EntityType: EntityDispatch, Resolve: resolveOwnsDispatch}
	e.resolvers[LinkageBanSubject] = &LinkageResolver{EntityType: EntityBan, Resolve: resolveBanSubject}
}

// ============================================================================
// BUILTIN RESOLVERS
// ============================================================================

// resolveOwnsWorker: the worker's linked contact carries the user's email.
// Email matching is case-insensitive throughout.
func resolveOwnsWorker(ctx context.Context, req *LinkageRequest) (bool, error) {
	return workerOwnedBy(ctx, req, req.EntityID)
}

func workerOwnedBy(ctx context.Context, req *LinkageRequest, workerID string) (bool, error) {
	rec, err := req.LoadEntity(ctx, EntityWorker, workerID)
	if err != nil {
		return false, err
	}
	contactID, _ := recordString(rec, "contact_id")
	if contactID == "" {
		return false, nil
	}
	contact, err := req.Storage.GetContact(ctx, contactID)
	if err != nil {
		return false, err
	}
	return contact != nil && emailsEqual(contact.Email, req.UserEmail), nil
}

func resolveOwnsContact(ctx context.Context, req *LinkageRequest) (bool, error) {
	rec, err := req.LoadEntity(ctx, EntityContact, req.EntityID)
	if err != nil {
		return false, err
	}
	email, _ := recordString(rec, "email")
	return email != "" && emailsEqual(email, req.UserEmail), nil
}

// resolveEmployerContact: the user's contact is registered as a contact of
// the employer entity.
func resolveEmployerContact(ctx context.Context, req *LinkageRequest) (bool, error) {
	contact, err := req.Storage.GetContactByEmail(ctx, req.UserEmail)
	if err != nil {
		return false, err
	}
	if contact == nil {
		return false, nil
	}
	return req.Storage.IsEmployerContact(ctx, contact.ID, req.EntityID)
}

// resolveProviderWorkerBenefit: the user is a provider contact and one of
// their providers administers an active benefit for the worker.
func resolveProviderWorkerBenefit(ctx context.Context, req *LinkageRequest) (bool, error) {
	contact, err := req.Storage.GetContactByEmail(ctx, req.UserEmail)
	if err != nil {
		return false, err
	}
	if contact == nil {
		return false, nil
	}
	providerIDs, err := req.Storage.ListProviderIDs(ctx, contact.ID)
	if err != nil {
		return false, err
	}
	for _, pid := range providerIDs {
		active, err := req.Storage.HasActiveBenefit(ctx, pid, req.EntityID)
		if err != nil {
			return false, err
		}
		if active {
			return true, nil
		}
	}
	return false, nil
}

func resolveOwnsDispatch(ctx context.Context, req *LinkageRequest) (bool, error) {
	rec, err := req.LoadEntity(ctx, EntityDispatch, req.EntityID)
	if err != nil {
		return false, err
	}
	workerID, _ := recordString(rec, "worker_id")
	if workerID == "" {
		return false, nil
	}
	return workerOwnedBy(ctx, req, workerID)
}

func resolveBanSubject(ctx context.Context, req *LinkageRequest) (bool, error) {
	rec, err := req.LoadEntity(ctx, EntityBan, req.EntityID)
	if err != nil {
		return false, err
	}
	email, _ := recordString(rec, "contact_email")
	return email != "" && emailsEqual(email, req.UserEmail), nil
}

// ============================================================================
// DELEGATING PREDICATES
// ============================================================================

// readOnlyPolicy reports whether a policy id is a read-only variant.
func readOnlyPolicy(policyID string) bool {
	return strings.HasSuffix(policyID, ".view") || strings.HasSuffix(policyID, ".read")
}

// redirectPolicyID builds the target policy id for a delegating predicate:
// the target entity's manage policy, downgraded to its view variant when
// the policy originally being evaluated was itself read-only.
func redirectPolicyID(base string, readOnly bool) string {
	if readOnly {
		return base + ".view"
	}
	return base + ".manage"
}

// esigDocumentEntities maps an e-signature's document type field to the
// entity type its access redirects to.
var esigDocumentEntities = map[string]EntityType{
	"cardcheck": EntityCardcheck,
	"dispatch":  EntityDispatch,
	"worker":    EntityWorker,
}

// fileTargetEntities maps a file's attached-entity type field to the entity
// type its access redirects to.
var fileTargetEntities = map[string]EntityType{
	"worker":    EntityWorker,
	"employer":  EntityEmployer,
	"cardcheck": EntityCardcheck,
	"dispatch":  EntityDispatch,
}

// resolveDelegatingLinkage handles the predicates that defer to another
// policy evaluated against a related entity. Missing entities and
// unrecognized type fields fail closed with an explicit reason; access is
// never silently granted.
func (e *Engine) resolveDelegatingLinkage(ctx context.Context, pred LinkagePredicate, ec *EvaluationContext) (bool, string, error) {
	readOnly := readOnlyPolicy(ec.PolicyID)

	switch pred {
	case LinkageCardcheckWorkerAccess:
		rec, err := e.loadEntityRecord(ctx, ec, EntityCardcheck, ec.EntityID)
		if err != nil {
			return false, "", err
		}
		if rec == nil {
			return false, fmt.Sprintf("Entity not found: cardcheck:%s", ec.EntityID), nil
		}
		workerID, _ := recordString(rec, "worker_id")
		if workerID == "" {
			return false, "Cardcheck has no linked worker", nil
		}
		return e.evaluatePolicyAgainst(ctx, redirectPolicyID("worker", readOnly), workerID, ec)

	case LinkageESigEntityAccess:
		rec, err := e.loadEntityRecord(ctx, ec, EntityESignature, ec.EntityID)
		if err != nil {
			return false, "", err
		}
		if rec == nil {
			return false, fmt.Sprintf("Entity not found: esignature:%s", ec.EntityID), nil
		}
		docType, _ := recordString(rec, "document_type")
		if _, known := esigDocumentEntities[docType]; !known {
			e.logger.Error("unknown e-signature document type", "document_type", docType, "entity", ec.EntityID)
			return false, fmt.Sprintf("Unknown e-signature document type: %s", docType), nil
		}
		docID, _ := recordString(rec, "document_id")
		return e.evaluatePolicyAgainst(ctx, redirectPolicyID(docType, readOnly), docID, ec)

	case LinkageFileEntityAccess:
		rec, err := e.loadEntityRecord(ctx, ec, EntityFile, ec.EntityID)
		if err != nil {
			return false, "", err
		}
		if rec == nil {
			return false, fmt.Sprintf("Entity not found: file:%s", ec.EntityID), nil
		}
		entityType, _ := recordString(rec, "entity_type")
		if _, known := fileTargetEntities[entityType]; !known {
			e.logger.Error("unknown file entity type", "entity_type", entityType, "entity", ec.EntityID)
			return false, fmt.Sprintf("Unknown file entity type: %s", entityType), nil
		}
		entityID, _ := recordString(rec, "entity_id")
		return e.evaluatePolicyAgainst(ctx, redirectPolicyID(entityType, readOnly), entityID, ec)
	}

	return false, fmt.Sprintf("Unknown linkage predicate: %s", pred), nil
}

// ============================================================================
// BUILTIN ENTITY LOADERS
// ============================================================================

func registerBuiltinLoaders(e *Engine) {
	e.loaders[EntityWorker] = loadWorkerRecord
	e.loaders[EntityEmployer] = loadEmployerRecord
	e.loaders[EntityContact] = loadContactRecord
	e.loaders[EntityCardcheck] = loadCardcheckRecord
	e.loaders[EntityESignature] = loadESignatureRecord
	e.loaders[EntityFile] = loadFileRecord
	e.loaders[EntityBan] = loadBanRecord
	e.loaders[EntityDispatch] = loadDispatchRecord
}

func loadWorkerRecord(ctx context.Context, st Storage, id string) (map[string]any, error) {
	w, err := st.GetWorker(ctx, id)
	if err != nil || w == nil {
		return nil, err
	}
	return map[string]any{"id": w.ID, "contact_id": w.ContactID, "local": w.Local, "status": w.Status}, nil
}

func loadEmployerRecord(ctx context.Context, st Storage, id string) (map[string]any, error) {
	em, err := st.GetEmployer(ctx, id)
	if err != nil || em == nil {
		return nil, err
	}
	return map[string]any{"id": em.ID, "name": em.Name, "status": em.Status}, nil
}

func loadContactRecord(ctx context.Context, st Storage, id string) (map[string]any, error) {
	c, err := st.GetContact(ctx, id)
	if err != nil || c == nil {
		return nil, err
	}
	return map[string]any{"id": c.ID, "email": c.Email, "name": c.Name}, nil
}

func loadCardcheckRecord(ctx context.Context, st Storage, id string) (map[string]any, error) {
	cc, err := st.GetCardcheck(ctx, id)
	if err != nil || cc == nil {
		return nil, err
	}
	return map[string]any{"id": cc.ID, "worker_id": cc.WorkerID, "employer_id": cc.EmployerID, "status": cc.Status}, nil
}

func loadESignatureRecord(ctx context.Context, st Storage, id string) (map[string]any, error) {
	sig, err := st.GetESignature(ctx, id)
	if err != nil || sig == nil {
		return nil, err
	}
	return map[string]any{"id": sig.ID, "document_type": sig.DocumentType, "document_id": sig.DocumentID, "signer_email": sig.SignerEmail, "status": sig.Status}, nil
}

func loadFileRecord(ctx context.Context, st Storage, id string) (map[string]any, error) {
	f, err := st.GetFile(ctx, id)
	if err != nil || f == nil {
		return nil, err
	}
	return map[string]any{"id": f.ID, "entity_type": f.EntityType, "entity_id": f.EntityID, "name": f.Name}, nil
}

func loadBanRecord(ctx context.Context, st Storage, id string) (map[string]any, error) {
	b, err := st.GetBan(ctx, id)
	if err != nil || b == nil {
		return nil, err
	}
	return map[string]any{"id": b.ID, "contact_email": b.ContactEmail, "reason": b.Reason}, nil
}

func loadDispatchRecord(ctx context.Context, st Storage, id string) (map[string]any, error) {
	d, err := st.GetDispatch(ctx, id)
	if err != nil || d == nil {
		return nil, err
	}
	return map[string]any{"id": d.ID, "worker_id": d.WorkerID, "employer_id": d.EmployerID, "status": d.Status}, nil
}

// ============================================================================
// HELPERS
// ============================================================================

func recordString(rec map[string]any, field string) (string, bool) {
	if rec == nil {
		return "", false
	}
	s, ok := rec[field].(string)
	return s, ok
}

func emailsEqual(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}
