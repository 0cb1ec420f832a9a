package stores

import (
	"context"
	"strings"
	"sync"

	"github.com/unionhall/policy"
)

// MemoryDirectory implements policy.Storage in-memory for testing/demo
type MemoryDirectory struct {
	mu          sync.RWMutex
	contacts    map[string]*policy.Contact
	byEmail     map[string]*policy.Contact
	workers     map[string]*policy.Worker
	employers   map[string]*policy.Employer
	cardchecks  map[string]*policy.Cardcheck
	esignatures map[string]*policy.ESignature
	files       map[string]*policy.File
	bans        map[string]*policy.Ban
	dispatches  map[string]*policy.Dispatch

	employerContacts map[string]map[string]bool // contactID -> employerID set
	providerContacts map[string][]string        // contactID -> provider ids
	benefits         map[string]map[string]bool // providerID -> workerID set
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		contacts:         make(map[string]*policy.Contact),
		byEmail:          make(map[string]*policy.Contact),
		workers:          make(map[string]*policy.Worker),
		employers:        make(map[string]*policy.Employer),
		cardchecks:       make(map[string]*policy.Cardcheck),
		esignatures:      make(map[string]*policy.ESignature),
		files:            make(map[string]*policy.File),
		bans:             make(map[string]*policy.Ban),
		dispatches:       make(map[string]*policy.Dispatch),
		employerContacts: make(map[string]map[string]bool),
		providerContacts: make(map[string][]string),
		benefits:         make(map[string]map[string]bool),
	}
}

func (d *MemoryDirectory) AddContact(c *policy.Contact) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contacts[c.ID] = c
	d.byEmail[strings.ToLower(c.Email)] = c
}

func (d *MemoryDirectory) AddWorker(w *policy.Worker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.workers[w.ID] = w
}

func (d *MemoryDirectory) AddEmployer(e *policy.Employer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.employers[e.ID] = e
}

func (d *MemoryDirectory) AddCardcheck(c *policy.Cardcheck) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cardchecks[c.ID] = c
}

func (d *MemoryDirectory) AddESignature(e *policy.ESignature) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.esignatures[e.ID] = e
}

func (d *MemoryDirectory) AddFile(f *policy.File) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files[f.ID] = f
}

func (d *MemoryDirectory) AddBan(b *policy.Ban) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bans[b.ID] = b
}

func (d *MemoryDirectory) AddDispatch(dp *policy.Dispatch) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatches[dp.ID] = dp
}

func (d *MemoryDirectory) LinkEmployerContact(contactID, employerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.employerContacts[contactID] == nil {
		d.employerContacts[contactID] = make(map[string]bool)
	}
	d.employerContacts[contactID][employerID] = true
}

func (d *MemoryDirectory) LinkProviderContact(contactID, providerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.providerContacts[contactID] = append(d.providerContacts[contactID], providerID)
}

func (d *MemoryDirectory) AddBenefit(providerID, workerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.benefits[providerID] == nil {
		d.benefits[providerID] = make(map[string]bool)
	}
	d.benefits[providerID][workerID] = true
}

func (d *MemoryDirectory) GetContact(ctx context.Context, id string) (*policy.Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.contacts[id], nil
}

func (d *MemoryDirectory) GetContactByEmail(ctx context.Context, email string) (*policy.Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.byEmail[strings.ToLower(email)], nil
}

func (d *MemoryDirectory) GetWorker(ctx context.Context, id string) (*policy.Worker, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.workers[id], nil
}

func (d *MemoryDirectory) GetEmployer(ctx context.Context, id string) (*policy.Employer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.employers[id], nil
}

func (d *MemoryDirectory) GetCardcheck(ctx context.Context, id string) (*policy.Cardcheck, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cardchecks[id], nil
}

func (d *MemoryDirectory) GetESignature(ctx context.Context, id string) (*policy.ESignature, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.esignatures[id], nil
}

func (d *MemoryDirectory) GetFile(ctx context.Context, id string) (*policy.File, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.files[id], nil
}

func (d *MemoryDirectory) GetBan(ctx context.Context, id string) (*policy.Ban, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.bans[id], nil
}

func (d *MemoryDirectory) GetDispatch(ctx context.Context, id string) (*policy.Dispatch, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dispatches[id], nil
}

func (d *MemoryDirectory) IsEmployerContact(ctx context.Context, contactID, employerID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.employerContacts[contactID][employerID], nil
}

func (d *MemoryDirectory) ListProviderIDs(ctx context.Context, contactID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := d.providerContacts[contactID]
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

func (d *MemoryDirectory) HasActiveBenefit(ctx context.Context, providerID, workerID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.benefits[providerID][workerID], nil
}

// MemoryPermissionStore implements policy.PermissionStore in-memory
type MemoryPermissionStore struct {
	mu         sync.RWMutex
	perms      map[string]map[string]bool // userID -> permission key set
	admins     map[string]bool
	users      map[string]*policy.User
	byExternal map[string]*policy.User
}

func NewMemoryPermissionStore() *MemoryPermissionStore {
	return &MemoryPermissionStore{
		perms:      make(map[string]map[string]bool),
		admins:     make(map[string]bool),
		users:      make(map[string]*policy.User),
		byExternal: make(map[string]*policy.User),
	}
}

func (s *MemoryPermissionStore) AddUser(u *policy.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	if u.ExternalID != "" {
		s.byExternal[u.ExternalID] = u
	}
}

func (s *MemoryPermissionStore) Grant(userID string, keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.perms[userID] == nil {
		s.perms[userID] = make(map[string]bool)
	}
	for _, key := range keys {
		s.perms[userID][key] = true
	}
}

func (s *MemoryPermissionStore) Revoke(userID string, keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.perms[userID], key)
	}
}

func (s *MemoryPermissionStore) SetAdmin(userID string, admin bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[userID] = admin
}

func (s *MemoryPermissionStore) HasPermission(ctx context.Context, userID, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.perms[userID][key], nil
}

func (s *MemoryPermissionStore) IsAdmin(ctx context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.admins[userID] || s.perms[userID][policy.AdminPermission], nil
}

func (s *MemoryPermissionStore) GetUser(ctx context.Context, id string) (*policy.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[id], nil
}

func (s *MemoryPermissionStore) GetUserByExternalID(ctx context.Context, externalID string) (*policy.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byExternal[externalID], nil
}

// MemoryComponentChecker implements policy.ComponentChecker in-memory.
// Components are disabled until enabled explicitly.
type MemoryComponentChecker struct {
	mu      sync.RWMutex
	enabled map[string]bool
}

func NewMemoryComponentChecker(enabled ...string) *MemoryComponentChecker {
	c := &MemoryComponentChecker{enabled: make(map[string]bool)}
	for _, id := range enabled {
		c.enabled[id] = true
	}
	return c
}

func (c *MemoryComponentChecker) SetEnabled(componentID string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled[componentID] = on
}

func (c *MemoryComponentChecker) IsEnabled(ctx context.Context, componentID string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled[componentID], nil
}
