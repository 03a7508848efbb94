package handler

import (
	"context"

	"github.com/iliyamo/address-book/internal/model"
)

// UserStore is the credential store used by the auth and user admin
// handlers. *repository.UserRepo and the in-memory store implement it.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	List(ctx context.Context) ([]model.User, error)
	Create(ctx context.Context, username, password string, role model.Role) (uint64, error)
	ChangeOwnPassword(ctx context.Context, id uint64, password string) error
	SetPasswordByAdmin(ctx context.Context, id uint64, password string) error
	UpdateRole(ctx context.Context, id uint64, role model.Role) error
	ForcePasswordReset(ctx context.Context, id uint64) error
	Delete(ctx context.Context, id uint64) error
}
