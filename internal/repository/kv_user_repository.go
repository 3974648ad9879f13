package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"plantops/portal/internal/ids"
	"plantops/portal/internal/kv"
	"plantops/portal/internal/models"
)

const usersKey = "users"

// KVUserRepository keeps the whole user list as one JSON document in a key-value store.
// Mutations go through kv.Store.Mutate, so separate processes sharing the document
// (replicas, portalctl) never overwrite each other's changes.
type KVUserRepository struct {
	store kv.Store
	log   zerolog.Logger
}

func NewKVUserRepository(store kv.Store, log zerolog.Logger) *KVUserRepository {
	return &KVUserRepository{store: store, log: log}
}

// decode parses the stored list. A document that fails to parse is reported as
// ErrStorageCorrupt alongside an empty list.
func (r *KVUserRepository) decode(raw string, ok bool) ([]models.User, error) {
	if !ok || raw == "" {
		return []models.User{}, nil
	}

	var records []kvUserRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		r.log.Warn().Err(err).Str("key", usersKey).Msg("user list is not valid json")
		return []models.User{}, fmt.Errorf("%w: %v", ErrStorageCorrupt, err)
	}

	users := make([]models.User, 0, len(records))
	for _, record := range records {
		users = append(users, record.user())
	}
	return users, nil
}

func encodeUsers(users []models.User) (string, error) {
	records := make([]kvUserRecord, 0, len(users))
	for _, user := range users {
		records = append(records, newKVUserRecord(user))
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("encode users: %w", err)
	}
	return string(payload), nil
}

// readable treats a corrupt document as an empty one.
func (r *KVUserRepository) readable(ctx context.Context) ([]models.User, error) {
	raw, ok, err := r.store.Get(ctx, usersKey)
	if err != nil {
		return nil, err
	}
	users, err := r.decode(raw, ok)
	if err != nil && !isCorrupt(err) {
		return nil, err
	}
	return users, nil
}

// mutate applies change to the current list and stores the result in one atomic
// step. change may run several times when other writers interfere.
func (r *KVUserRepository) mutate(ctx context.Context, change func(users []models.User) ([]models.User, error)) error {
	return r.store.Mutate(ctx, usersKey, func(raw string, ok bool) (string, error) {
		users, err := r.decode(raw, ok)
		if err != nil {
			return "", err
		}
		next, err := change(users)
		if err != nil {
			return "", err
		}
		if next == nil {
			return raw, nil
		}
		return encodeUsers(next)
	})
}

func (r *KVUserRepository) List(ctx context.Context) ([]models.User, error) {
	users, err := r.readable(ctx)
	if err != nil {
		return nil, err
	}
	sortUsers(users)
	return users, nil
}

func (r *KVUserRepository) FindByIdentifier(ctx context.Context, identifier string) (models.User, error) {
	users, err := r.readable(ctx)
	if err != nil {
		return models.User{}, err
	}
	for _, user := range users {
		if user.MatchesIdentifier(identifier) {
			return user, nil
		}
	}
	return models.User{}, ErrUserNotFound
}

func (r *KVUserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	users, err := r.readable(ctx)
	if err != nil {
		return models.User{}, err
	}
	for _, user := range users {
		if user.ID == id {
			return user, nil
		}
	}
	return models.User{}, ErrUserNotFound
}

func (r *KVUserRepository) Add(ctx context.Context, user models.User) (models.User, error) {
	now := time.Now().UTC()
	user.ID = ids.New()
	user.CreatedAt = now
	user.UpdatedAt = now

	err := r.mutate(ctx, func(users []models.User) ([]models.User, error) {
		if findCollision(users, user) {
			return nil, ErrDuplicateIdentifier
		}
		return append(users, user), nil
	})
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *KVUserRepository) Update(ctx context.Context, id string, patch models.UserPatch) (models.User, error) {
	var updated models.User
	err := r.mutate(ctx, func(users []models.User) ([]models.User, error) {
		idx := -1
		for i, user := range users {
			if user.ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, ErrUserNotFound
		}

		updated = patch.Apply(users[idx])
		if findCollision(users, updated) {
			return nil, ErrDuplicateIdentifier
		}
		updated.UpdatedAt = time.Now().UTC()

		next := make([]models.User, len(users))
		copy(next, users)
		next[idx] = updated
		return next, nil
	})
	if err != nil {
		return models.User{}, err
	}
	return updated, nil
}

func (r *KVUserRepository) Delete(ctx context.Context, id string) error {
	return r.mutate(ctx, func(users []models.User) ([]models.User, error) {
		next := make([]models.User, 0, len(users))
		for _, user := range users {
			if user.ID != id {
				next = append(next, user)
			}
		}
		if len(next) == len(users) {
			return nil, nil
		}
		return next, nil
	})
}

// kvUserRecord is the stored shape; models.User hides the hash from JSON.
type kvUserRecord struct {
	ID           string          `json:"id"`
	Username     string          `json:"username"`
	NIK          string          `json:"nik"`
	PasswordHash string          `json:"passwordHash"`
	Role         models.Role     `json:"role"`
	Location     models.Location `json:"location,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func newKVUserRecord(user models.User) kvUserRecord {
	return kvUserRecord{
		ID:           user.ID,
		Username:     user.Username,
		NIK:          user.NIK,
		PasswordHash: string(user.PasswordHash),
		Role:         user.Role,
		Location:     user.Location,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
}

func (r kvUserRecord) user() models.User {
	return models.User{
		ID:           r.ID,
		Username:     r.Username,
		NIK:          r.NIK,
		PasswordHash: []byte(r.PasswordHash),
		Role:         r.Role,
		Location:     r.Location,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}
