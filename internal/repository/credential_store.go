package repository

import (
	"context"
	"errors"
	"sort"
	"strings"

	"plantops/portal/internal/models"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrDuplicateIdentifier = errors.New("username or nik already in use")
	ErrStorageCorrupt      = errors.New("stored user data is corrupt")
)

// CredentialStore is the durable list of portal users. Every mutation is persisted
// before it returns and either applies completely or not at all.
type CredentialStore interface {
	List(ctx context.Context) ([]models.User, error)
	// FindByIdentifier matches identifier against username or NIK, ignoring case.
	FindByIdentifier(ctx context.Context, identifier string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	// Add stores user under a freshly generated id and returns the stored record.
	Add(ctx context.Context, user models.User) (models.User, error)
	Update(ctx context.Context, id string, patch models.UserPatch) (models.User, error)
	// Delete removes id. Deleting an absent id succeeds.
	Delete(ctx context.Context, id string) error
}

func sortUsers(users []models.User) {
	sort.Slice(users, func(i, j int) bool {
		return strings.ToLower(users[i].Username) < strings.ToLower(users[j].Username)
	})
}

func findCollision(users []models.User, candidate models.User) bool {
	for _, existing := range users {
		if existing.ID == candidate.ID {
			continue
		}
		if candidate.CollidesWith(existing) {
			return true
		}
	}
	return false
}

func isCorrupt(err error) bool {
	return errors.Is(err, ErrStorageCorrupt)
}
