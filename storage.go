package policy

import "context"

// ============================================================================
// COLLABORATOR INTERFACES
// ============================================================================

// PermissionStore answers permission and identity questions for users. All
// methods may hit a database; errors are infrastructure failures and are
// propagated out of Evaluate unchanged.
type PermissionStore interface {
	HasPermission(ctx context.Context, userID, key string) (bool, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (*User, error)
}

// ComponentChecker answers whether a named feature component is enabled.
type ComponentChecker interface {
	IsEnabled(ctx context.Context, componentID string) (bool, error)
}

// Storage is the read-only domain directory consumed by linkage resolvers
// and entity loaders. Lookups return (nil, nil) when the record does not
// exist; a non-nil error always means the lookup itself failed.
type Storage interface {
	GetContact(ctx context.Context, id string) (*Contact, error)
	GetContactByEmail(ctx context.Context, email string) (*Contact, error)
	GetWorker(ctx context.Context, id string) (*Worker, error)
	GetEmployer(ctx context.Context, id string) (*Employer, error)
	GetCardcheck(ctx context.Context, id string) (*Cardcheck, error)
	GetESignature(ctx context.Context, id string) (*ESignature, error)
	GetFile(ctx context.Context, id string) (*File, error)
	GetBan(ctx context.Context, id string) (*Ban, error)
	GetDispatch(ctx context.Context, id string) (*Dispatch, error)

	// Relationship queries used by linkage resolvers.
	IsEmployerContact(ctx context.Context, contactID, employerID string) (bool, error)
	ListProviderIDs(ctx context.Context, contactID string) ([]string, error)
	HasActiveBenefit(ctx context.Context, providerID, workerID string) (bool, error)
}

// EntityLoader fetches the raw attribute record for one entity. Loaders
// return (nil, nil) when the entity does not exist.
type EntityLoader func(ctx context.Context, st Storage, entityID string) (map[string]any, error)
