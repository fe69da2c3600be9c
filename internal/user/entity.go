// AngelaMos | 2026
// entity.go

package user

import (
	"slices"
	"time"

	"github.com/lib/pq"
)

type User struct {
	ID           string         `db:"id"`
	Username     string         `db:"username"`
	Email        string         `db:"email"`
	PasswordHash string         `db:"password_hash"`
	Roles        pq.StringArray `db:"roles"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	DeletedAt    *time.Time     `db:"deleted_at"`
}

func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}

func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)
