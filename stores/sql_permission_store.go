package stores

import (
	"context"

	"github.com/oarkflow/squealx"

	"github.com/unionhall/policy"
)

// SQLPermissionStore implements policy.PermissionStore over SQL (squealx)
type SQLPermissionStore struct {
	db *squealx.DB
}

func NewSQLPermissionStore(db *squealx.DB) *SQLPermissionStore {
	return &SQLPermissionStore{db: db}
}

func (s *SQLPermissionStore) HasPermission(ctx context.Context, userID, key string) (bool, error) {
	q := `SELECT COUNT(1) FROM user_permissions WHERE user_id = :user_id AND permission = :permission`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"user_id": userID, "permission": key})
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

func (s *SQLPermissionStore) IsAdmin(ctx context.Context, userID string) (bool, error) {
	admin, found, err := s.adminFlag(ctx, userID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if admin {
		return true, nil
	}
	return s.HasPermission(ctx, userID, policy.AdminPermission)
}

func (s *SQLPermissionStore) adminFlag(ctx context.Context, userID string) (admin, found bool, err error) {
	q := `SELECT is_admin FROM users WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": userID})
	if err != nil {
		return false, false, err
	}
	defer r.Close()
	if !r.Next() {
		return false, false, nil
	}
	var adminInt int
	if err := r.Scan(&adminInt); err != nil {
		return false, false, err
	}
	return adminInt != 0, true, nil
}

func (s *SQLPermissionStore) GetUser(ctx context.Context, id string) (*policy.User, error) {
	q := `SELECT id, external_id, email, name FROM users WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	u := &policy.User{}
	if err := r.Scan(&u.ID, &u.ExternalID, &u.Email, &u.Name); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *SQLPermissionStore) GetUserByExternalID(ctx context.Context, externalID string) (*policy.User, error) {
	q := `SELECT id, external_id, email, name FROM users WHERE external_id = :external_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"external_id": externalID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	u := &policy.User{}
	if err := r.Scan(&u.ID, &u.ExternalID, &u.Email, &u.Name); err != nil {
		return nil, err
	}
	return u, nil
}

// SQLComponentChecker implements policy.ComponentChecker over SQL
type SQLComponentChecker struct {
	db *squealx.DB
}

func NewSQLComponentChecker(db *squealx.DB) *SQLComponentChecker {
	return &SQLComponentChecker{db: db}
}

func (s *SQLComponentChecker) IsEnabled(ctx context.Context, componentID string) (bool, error) {
	q := `SELECT enabled FROM components WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": componentID})
	if err != nil {
		return false, err
	}
	defer r.Close()
	if !r.Next() {
		return false, nil
	}
	var enabledInt int
	if err := r.Scan(&enabledInt); err != nil {
		return false, err
	}
	return enabledInt != 0, nil
}
