package policy_test

import (
	"context"
	"testing"

	"github.com/unionhall/policy"
)

func linkagePolicy(id string, et policy.EntityType, pred policy.LinkagePredicate) *policy.Policy {
	return policy.NewPolicyBuilder().ID(id).Entity(et).
		Allow(policy.NewConditionBuilder().Linkage(pred)).
		Build()
}

func TestOwnsWorkerEmailCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, linkagePolicy("worker.view", policy.EntityWorker, policy.LinkageOwnsWorker))
	env.directory.AddContact(&policy.Contact{ID: "c1", Email: "Maria@Example.ORG"})
	env.directory.AddWorker(&policy.Worker{ID: "w1", ContactID: "c1"})

	dec, err := env.engine.Evaluate(context.Background(), &policy.User{ID: "u1", Email: "maria@example.org"}, "worker.view", "w1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !dec.Granted {
		t.Fatalf("expected grant with case-insensitive email match, got %q", dec.Reason)
	}
}

func TestOwnsContact(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, linkagePolicy("contact.self", policy.EntityContact, policy.LinkageOwnsContact))
	env.directory.AddContact(&policy.Contact{ID: "c1", Email: "maria@example.org"})

	dec, _ := env.engine.Evaluate(context.Background(), &policy.User{ID: "u1", Email: "maria@example.org"}, "contact.self", "c1")
	if !dec.Granted {
		t.Fatalf("expected grant for own contact, got %q", dec.Reason)
	}
	dec, _ = env.engine.Evaluate(context.Background(), &policy.User{ID: "u2", Email: "other@example.org"}, "contact.self", "c1")
	if dec.Granted {
		t.Fatalf("expected deny for foreign contact")
	}
}

func TestEmployerContactLinkage(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, linkagePolicy("employer.view", policy.EntityEmployer, policy.LinkageEmployerContact))
	env.directory.AddContact(&policy.Contact{ID: "c1", Email: "rep@acme.test"})
	env.directory.AddEmployer(&policy.Employer{ID: "e1", Name: "Acme"})
	env.directory.LinkEmployerContact("c1", "e1")

	dec, _ := env.engine.Evaluate(context.Background(), &policy.User{ID: "u1", Email: "rep@acme.test"}, "employer.view", "e1")
	if !dec.Granted {
		t.Fatalf("expected grant for employer contact, got %q", dec.Reason)
	}
	dec, _ = env.engine.Evaluate(context.Background(), &policy.User{ID: "u2", Email: "stranger@acme.test"}, "employer.view", "e1")
	if dec.Granted {
		t.Fatalf("expected deny for non-contact")
	}
}

func TestProviderWorkerBenefitLinkage(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, linkagePolicy("worker.benefits", policy.EntityWorker, policy.LinkageProviderWorkerBenefit))
	env.directory.AddContact(&policy.Contact{ID: "c1", Email: "agent@provider.test"})
	env.directory.AddWorker(&policy.Worker{ID: "w1"})
	env.directory.LinkProviderContact("c1", "p1")
	env.directory.AddBenefit("p1", "w1")

	dec, _ := env.engine.Evaluate(context.Background(), &policy.User{ID: "u1", Email: "agent@provider.test"}, "worker.benefits", "w1")
	if !dec.Granted {
		t.Fatalf("expected grant via active benefit, got %q", dec.Reason)
	}
	dec, _ = env.engine.Evaluate(context.Background(), &policy.User{ID: "u1", Email: "agent@provider.test"}, "worker.benefits", "w2")
	if dec.Granted {
		t.Fatalf("expected deny without benefit")
	}
}

func TestOwnsDispatchLinkage(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, linkagePolicy("dispatch.view", policy.EntityDispatch, policy.LinkageOwnsDispatch))
	env.directory.AddContact(&policy.Contact{ID: "c1", Email: "maria@example.org"})
	env.directory.AddWorker(&policy.Worker{ID: "w1", ContactID: "c1"})
	env.directory.AddDispatch(&policy.Dispatch{ID: "d1", WorkerID: "w1"})

	dec, _ := env.engine.Evaluate(context.Background(), &policy.User{ID: "u1", Email: "maria@example.org"}, "dispatch.view", "d1")
	if !dec.Granted {
		t.Fatalf("expected grant for own dispatch, got %q", dec.Reason)
	}
}

func TestBanSubjectLinkage(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, linkagePolicy("ban.view", policy.EntityBan, policy.LinkageBanSubject))
	env.directory.AddBan(&policy.Ban{ID: "b1", ContactEmail: "maria@example.org"})

	dec, _ := env.engine.Evaluate(context.Background(), &policy.User{ID: "u1", Email: "maria@example.org"}, "ban.view", "b1")
	if !dec.Granted {
		t.Fatalf("expected grant for ban subject, got %q", dec.Reason)
	}
	dec, _ = env.engine.Evaluate(context.Background(), &policy.User{ID: "u2", Email: "other@example.org"}, "ban.view", "b1")
	if dec.Granted {
		t.Fatalf("expected deny for non-subject")
	}
}

func TestLinkageEntityTypeMismatchDenies(t *testing.T) {
	env := newTestEnv(t)
	// ownsWorker resolves worker entities; the policy declares employer.
	env.register(t, policy.NewPolicyBuilder().ID("employer.odd").Entity(policy.EntityEmployer).
		Allow(policy.NewConditionBuilder().Linkage(policy.LinkageOwnsWorker)).
		Build())
	env.directory.AddEmployer(&policy.Employer{ID: "e1"})

	dec, err := env.engine.Evaluate(context.Background(), &policy.User{ID: "u1", Email: "u1@example.org"}, "employer.odd", "e1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if dec.Granted {
		t.Fatalf("expected deny on entity type mismatch")
	}
}

func TestCardcheckWorkerAccessRedirects(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, linkagePolicy("worker.view", policy.EntityWorker, policy.LinkageOwnsWorker))
	env.register(t, policy.NewPolicyBuilder().ID("worker.manage").Entity(policy.EntityWorker).
		Allow(policy.NewConditionBuilder().Permission("worker.manage")).
		Build())
	env.register(t, linkagePolicy("cardcheck.view", policy.EntityCardcheck, policy.LinkageCardcheckWorkerAccess))
	env.register(t, linkagePolicy("cardcheck.manage", policy.EntityCardcheck, policy.LinkageCardcheckWorkerAccess))

	env.directory.AddContact(&policy.Contact{ID: "c1", Email: "maria@example.org"})
	env.directory.AddWorker(&policy.Worker{ID: "w1", ContactID: "c1"})
	env.directory.AddCardcheck(&policy.Cardcheck{ID: "cc1", WorkerID: "w1"})
	owner := &policy.User{ID: "u1", Email: "maria@example.org"}

	// Read-only origin redirects to worker.view, which the owner passes.
	dec, err := env.engine.Evaluate(context.Background(), owner, "cardcheck.view", "cc1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !dec.Granted {
		t.Fatalf("expected grant via worker.view redirect, got %q", dec.Reason)
	}

	// Mutating origin redirects to worker.manage, which needs the permission.
	dec, _ = env.engine.Evaluate(context.Background(), owner, "cardcheck.manage", "cc1")
	if dec.Granted {
		t.Fatalf("expected deny via worker.manage redirect")
	}
	env.perms.Grant("u1", "worker.manage")
	env.engine.ClearCache()
	dec, _ = env.engine.Evaluate(context.Background(), owner, "cardcheck.manage", "cc1")
	if !dec.Granted {
		t.Fatalf("expected grant via worker.manage redirect, got %q", dec.Reason)
	}
}

func TestCardcheckWithoutWorkerFailsClosed(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, linkagePolicy("worker.view", policy.EntityWorker, policy.LinkageOwnsWorker))
	env.register(t, linkagePolicy("cardcheck.view", policy.EntityCardcheck, policy.LinkageCardcheckWorkerAccess))
	env.directory.AddCardcheck(&policy.Cardcheck{ID: "cc1"})

	dec, err := env.engine.Evaluate(context.Background(), &policy.User{ID: "u1", Email: "u1@example.org"}, "cardcheck.view", "cc1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if dec.Granted {
		t.Fatalf("expected deny for cardcheck without worker")
	}
}

func TestESigEntityAccessRedirects(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, linkagePolicy("dispatch.manage", policy.EntityDispatch, policy.LinkageOwnsDispatch))
	env.register(t, linkagePolicy("esignature.sign", policy.EntityESignature, policy.LinkageESigEntityAccess))

	env.directory.AddContact(&policy.Contact{ID: "c1", Email: "maria@example.org"})
	env.directory.AddWorker(&policy.Worker{ID: "w1", ContactID: "c1"})
	env.directory.AddDispatch(&policy.Dispatch{ID: "d1", WorkerID: "w1"})
	env.directory.AddESignature(&policy.ESignature{ID: "s1", DocumentType: "dispatch", DocumentID: "d1"})

	dec, err := env.engine.Evaluate(context.Background(), &policy.User{ID: "u1", Email: "maria@example.org"}, "esignature.sign", "s1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !dec.Granted {
		t.Fatalf("expected grant via dispatch redirect, got %q", dec.Reason)
	}
}

func TestESigUnknownDocumentTypeFailsClosed(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, linkagePolicy("esignature.sign", policy.EntityESignature, policy.LinkageESigEntityAccess))
	env.directory.AddESignature(&policy.ESignature{ID: "s1", DocumentType: "grievance", DocumentID: "g1"})

	dec, err := env.engine.Evaluate(context.Background(), &policy.User{ID: "u1", Email: "u1@example.org"}, "esignature.sign", "s1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if dec.Granted {
		t.Fatalf("expected deny for unknown document type")
	}
}

func TestFileEntityAccessRedirects(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, linkagePolicy("worker.view", policy.EntityWorker, policy.LinkageOwnsWorker))
	env.register(t, linkagePolicy("file.view", policy.EntityFile, policy.LinkageFileEntityAccess))

	env.directory.AddContact(&policy.Contact{ID: "c1", Email: "maria@example.org"})
	env.directory.AddWorker(&policy.Worker{ID: "w1", ContactID: "c1"})
	env.directory.AddFile(&policy.File{ID: "f1", EntityType: "worker", EntityID: "w1"})

	dec, err := env.engine.Evaluate(context.Background(), &policy.User{ID: "u1", Email: "maria@example.org"}, "file.view", "f1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !dec.Granted {
		t.Fatalf("expected grant via worker redirect, got %q", dec.Reason)
	}

	dec, _ = env.engine.Evaluate(context.Background(), &policy.User{ID: "u2", Email: "other@example.org"}, "file.view", "f1")
	if dec.Granted {
		t.Fatalf("expected deny for non-owner of attached worker")
	}
}

func TestCustomLinkageResolver(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.RegisterLinkageResolver("stewardOfLocal", &policy.LinkageResolver{
		EntityType: policy.EntityWorker,
		Resolve: func(ctx context.Context, req *policy.LinkageRequest) (bool, error) {
			rec, err := req.LoadEntity(ctx, policy.EntityWorker, req.EntityID)
			if err != nil || rec == nil {
				return false, err
			}
			return rec["local"] == "401", nil
		},
	}); err != nil {
		t.Fatalf("register resolver: %v", err)
	}
	env.register(t, linkagePolicy("worker.steward", policy.EntityWorker, "stewardOfLocal"))
	env.directory.AddWorker(&policy.Worker{ID: "w1", Local: "401"})
	env.directory.AddWorker(&policy.Worker{ID: "w2", Local: "702"})

	dec, _ := env.engine.Evaluate(context.Background(), &policy.User{ID: "u1", Email: "u1@example.org"}, "worker.steward", "w1")
	if !dec.Granted {
		t.Fatalf("expected grant via custom resolver, got %q", dec.Reason)
	}
	dec, _ = env.engine.Evaluate(context.Background(), &policy.User{ID: "u1", Email: "u1@example.org"}, "worker.steward", "w2")
	if dec.Granted {
		t.Fatalf("expected deny via custom resolver")
	}
}
