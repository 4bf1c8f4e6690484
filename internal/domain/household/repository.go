// internal/domain/household/repository.go
package household

import (
	"context"
	"errors"
)

var (
	ErrChoreNotFound = errors.New("chore not found")
	ErrUserNotFound  = errors.New("user not found")
)

// Repository is the engine's read boundary to the application data store.
type Repository interface {
	// ListOpenChoresWithDueDate returns chores that are not yet completed,
	// verified or rejected and carry a due date.
	ListOpenChoresWithDueDate(ctx context.Context) ([]*Chore, error)
	GetChore(ctx context.Context, id string) (*Chore, error)
	GetUser(ctx context.Context, id string) (*User, error)
	ListFamilyMembers(ctx context.Context, familyID string) ([]*User, error)
}
