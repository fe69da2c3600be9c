// AngelaMos | 2026
// service.go

package user

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/auth"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/core"
)

var knownRoles = []string{RoleUser, RoleAdmin}

// Service is the user directory behind login and refresh, plus the admin
// provisioning operations.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) FindByID(ctx context.Context, id string) (*auth.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("find user: %w", core.ErrNotFound)
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return toAuthUser(user), nil
}

func (s *Service) FindByUsername(
	ctx context.Context,
	username string,
) (*auth.User, error) {
	user, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}

	return toAuthUser(user), nil
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Create(ctx context.Context, req CreateUserRequest) (*User, error) {
	roles := req.Roles
	if len(roles) == 0 {
		roles = []string{RoleUser}
	}
	if err := checkRoles(roles); err != nil {
		return nil, err
	}

	hash, err := core.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	user := &User{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		Roles:        slices.Clone(roles),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// UpdateRoles takes effect on the user's next refresh; outstanding access
// tokens keep their roles until they expire.
func (s *Service) UpdateRoles(
	ctx context.Context,
	id string,
	roles []string,
) (*User, error) {
	if err := checkRoles(roles); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateRoles(ctx, id, roles); err != nil {
		return nil, err
	}

	return s.repo.GetByID(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.SoftDelete(ctx, id)
}

func checkRoles(roles []string) error {
	if len(roles) == 0 {
		return fmt.Errorf("roles: empty: %w", core.ErrInvalidInput)
	}
	for _, role := range roles {
		if !slices.Contains(knownRoles, role) {
			return fmt.Errorf("roles: unknown role %q: %w", role, core.ErrInvalidInput)
		}
	}
	return nil
}

func toAuthUser(u *User) *auth.User {
	return &auth.User{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Roles:        slices.Clone([]string(u.Roles)),
	}
}
