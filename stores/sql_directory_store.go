package stores

import (
	"context"

	"github.com/oarkflow/squealx"

	"github.com/unionhall/policy"
)

// SQLDirectoryStore implements policy.Storage over SQL (squealx)
type SQLDirectoryStore struct {
	db *squealx.DB
}

func NewSQLDirectoryStore(db *squealx.DB) *SQLDirectoryStore {
	return &SQLDirectoryStore{db: db}
}

func (s *SQLDirectoryStore) GetContact(ctx context.Context, id string) (*policy.Contact, error) {
	q := `SELECT id, email, name FROM contacts WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	c := &policy.Contact{}
	if err := r.Scan(&c.ID, &c.Email, &c.Name); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *SQLDirectoryStore) GetContactByEmail(ctx context.Context, email string) (*policy.Contact, error) {
	q := `SELECT id, email, name FROM contacts WHERE lower(email) = lower(:email)`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"email": email})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	c := &policy.Contact{}
	if err := r.Scan(&c.ID, &c.Email, &c.Name); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *SQLDirectoryStore) GetWorker(ctx context.Context, id string) (*policy.Worker, error) {
	q := `SELECT id, contact_id, local, status FROM workers WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	w := &policy.Worker{}
	if err := r.Scan(&w.ID, &w.ContactID, &w.Local, &w.Status); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *SQLDirectoryStore) GetEmployer(ctx context.Context, id string) (*policy.Employer, error) {
	q := `SELECT id, name, status FROM employers WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	e := &policy.Employer{}
	if err := r.Scan(&e.ID, &e.Name, &e.Status); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *SQLDirectoryStore) GetCardcheck(ctx context.Context, id string) (*policy.Cardcheck, error) {
	q := `SELECT id, worker_id, employer_id, status, signed_at FROM cardchecks WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	c := &policy.Cardcheck{}
	var signedRaw any
	if err := r.Scan(&c.ID, &c.WorkerID, &c.EmployerID, &c.Status, &signedRaw); err != nil {
		return nil, err
	}
	c.SignedAt = scanTime(signedRaw)
	return c, nil
}

func (s *SQLDirectoryStore) GetESignature(ctx context.Context, id string) (*policy.ESignature, error) {
	q := `SELECT id, document_type, document_id, signer_email, status FROM esignatures WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	e := &policy.ESignature{}
	if err := r.Scan(&e.ID, &e.DocumentType, &e.DocumentID, &e.SignerEmail, &e.Status); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *SQLDirectoryStore) GetFile(ctx context.Context, id string) (*policy.File, error) {
	q := `SELECT id, entity_type, entity_id, name FROM files WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	f := &policy.File{}
	if err := r.Scan(&f.ID, &f.EntityType, &f.EntityID, &f.Name); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *SQLDirectoryStore) GetBan(ctx context.Context, id string) (*policy.Ban, error) {
	q := `SELECT id, contact_email, reason, created_at FROM bans WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	b := &policy.Ban{}
	var createdRaw any
	if err := r.Scan(&b.ID, &b.ContactEmail, &b.Reason, &createdRaw); err != nil {
		return nil, err
	}
	b.CreatedAt = scanTime(createdRaw)
	return b, nil
}

func (s *SQLDirectoryStore) GetDispatch(ctx context.Context, id string) (*policy.Dispatch, error) {
	q := `SELECT id, worker_id, employer_id, status FROM dispatches WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	d := &policy.Dispatch{}
	if err := r.Scan(&d.ID, &d.WorkerID, &d.EmployerID, &d.Status); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *SQLDirectoryStore) IsEmployerContact(ctx context.Context, contactID, employerID string) (bool, error) {
	q := `SELECT COUNT(1) FROM employer_contacts WHERE contact_id = :contact_id AND employer_id = :employer_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"contact_id": contactID, "employer_id": employerID})
	if err != nil {
		return false, err
	}
	defer r.Close()
	if !r.Next() {
		return false, nil
	}
	var n int
	if err := r.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLDirectoryStore) ListProviderIDs(ctx context.Context, contactID string) ([]string, error) {
	q := `SELECT provider_id FROM provider_contacts WHERE contact_id = :contact_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"contact_id": contactID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]string, 0)
	for r.Next() {
		var id string
		if err := r.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *SQLDirectoryStore) HasActiveBenefit(ctx context.Context, providerID, workerID string) (bool, error) {
	q := `SELECT COUNT(1) FROM benefits WHERE provider_id = :provider_id AND worker_id = :worker_id AND active = 1`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"provider_id": providerID, "worker_id": workerID})
	if err != nil {
		return false, err
	}
	defer r.Close()
	if !r.Next() {
		return false, nil
	}
	var n int
	if err := r.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
