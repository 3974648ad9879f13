package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"plantops/portal/internal/kv"
	"plantops/portal/internal/models"
)

// The Postgres and Mongo backends run against real servers when these are set.
const (
	postgresDSNEnv = "PLANTOPS_TEST_POSTGRES_DSN"
	mongoURIEnv    = "PLANTOPS_TEST_MONGO_URI"
)

// credentialStoreContract is what every CredentialStore backend must do alike.
// newStore returns an empty store for each case.
func credentialStoreContract(t *testing.T, newStore func(t *testing.T) CredentialStore) {
	t.Run("add then find by either identifier", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		added, err := store.Add(ctx, operator())
		require.NoError(t, err)
		require.NotEmpty(t, added.ID)
		assert.False(t, added.CreatedAt.IsZero())

		for _, identifier := range []string{"operator1", "OPERATOR1", "nik001", " NIK001 "} {
			found, err := store.FindByIdentifier(ctx, identifier)
			require.NoError(t, err, identifier)
			assert.Equal(t, added.ID, found.ID)
			assert.Equal(t, []byte("hash-1"), found.PasswordHash)
			assert.Equal(t, models.LocationCikarang, found.Location)
		}

		byID, err := store.GetByID(ctx, added.ID)
		require.NoError(t, err)
		assert.Equal(t, "OPERATOR1", byID.Username)

		_, err = store.FindByIdentifier(ctx, "nobody")
		assert.ErrorIs(t, err, ErrUserNotFound)
		_, err = store.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("identifiers are unique across both fields", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		_, err := store.Add(ctx, operator())
		require.NoError(t, err)

		for name, user := range map[string]models.User{
			"same nik":          {Username: "OPERATOR2", NIK: "nik001"},
			"same username":     {Username: "operator1", NIK: "NIK002"},
			"username is a nik": {Username: "NIK001", NIK: "NIK003"},
			"nik is a username": {Username: "OPERATOR4", NIK: "Operator1"},
		} {
			user.PasswordHash = []byte("hash-x")
			user.Role = models.RoleEmployee
			_, err := store.Add(ctx, user)
			assert.ErrorIs(t, err, ErrDuplicateIdentifier, name)
		}

		users, err := store.List(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 1)
	})

	t.Run("update keeps the hash unless one is given", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		added, err := store.Add(ctx, operator())
		require.NoError(t, err)

		updated, err := store.Update(ctx, added.ID, models.UserPatch{Role: rolePtr(models.RolePlantHead)})
		require.NoError(t, err)
		assert.Equal(t, models.RolePlantHead, updated.Role)
		assert.Equal(t, []byte("hash-1"), updated.PasswordHash)

		updated, err = store.Update(ctx, added.ID, models.UserPatch{PasswordHash: []byte("hash-2"), Username: strPtr("operator1")})
		require.NoError(t, err)
		assert.Equal(t, "operator1", updated.Username)

		found, err := store.FindByIdentifier(ctx, "NIK001")
		require.NoError(t, err)
		assert.Equal(t, []byte("hash-2"), found.PasswordHash)

		_, err = store.Update(ctx, "missing", models.UserPatch{})
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("update rejects another record's identifier", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		_, err := store.Add(ctx, operator())
		require.NoError(t, err)
		second, err := store.Add(ctx, models.User{Username: "DRIVER1", NIK: "NIK002", PasswordHash: []byte("hash-2"), Role: models.RoleMixerDriver})
		require.NoError(t, err)

		_, err = store.Update(ctx, second.ID, models.UserPatch{NIK: strPtr("nik001")})
		assert.ErrorIs(t, err, ErrDuplicateIdentifier)

		unchanged, err := store.GetByID(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, "NIK002", unchanged.NIK)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		added, err := store.Add(ctx, operator())
		require.NoError(t, err)

		require.NoError(t, store.Delete(ctx, added.ID))
		require.NoError(t, store.Delete(ctx, added.ID))

		_, err = store.GetByID(ctx, added.ID)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("list is sorted by username", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		for _, name := range []string{"zaki", "Budi", "andi"} {
			_, err := store.Add(ctx, models.User{Username: name, NIK: "N-" + name, PasswordHash: []byte("h"), Role: models.RoleEmployee})
			require.NoError(t, err)
		}

		users, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, users, 3)
		assert.Equal(t, []string{"andi", "Budi", "zaki"}, []string{users[0].Username, users[1].Username, users[2].Username})
	})
}

func rolePtr(role models.Role) *models.Role { return &role }

func TestKVCredentialStoreContract(t *testing.T) {
	credentialStoreContract(t, func(t *testing.T) CredentialStore {
		return NewKVUserRepository(kv.NewMemoryStore(), zerolog.Nop())
	})
}

func postgresPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(postgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", postgresDSNEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pool.Ping(ctx))
	return pool
}

func TestPostgresCredentialStoreContract(t *testing.T) {
	pool := postgresPool(t)
	repo := NewUserRepository(pool)
	require.NoError(t, repo.EnsureSchema(context.Background()))

	credentialStoreContract(t, func(t *testing.T) CredentialStore {
		_, err := pool.Exec(context.Background(), `TRUNCATE users`)
		require.NoError(t, err)
		return repo
	})
}

func TestPostgresSessionRepository(t *testing.T) {
	pool := postgresPool(t)
	ctx := context.Background()
	repo := NewSessionRepository(pool)
	require.NoError(t, repo.EnsureSchema(ctx))
	_, err := pool.Exec(ctx, `TRUNCATE device_sessions`)
	require.NoError(t, err)

	store := kv.DeviceScope(repo, "dev-1")
	_, ok, err := store.Get(ctx, "session")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "session", `{"id":"u1"}`))
	require.NoError(t, store.Set(ctx, "session", `{"id":"u2"}`))
	value, ok, err := store.Get(ctx, "session")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"id":"u2"}`, value)

	require.NoError(t, store.Mutate(ctx, "counter", func(current string, ok bool) (string, error) {
		assert.False(t, ok)
		return current + "a", nil
	}))
	require.NoError(t, store.Mutate(ctx, "counter", func(current string, ok bool) (string, error) {
		assert.True(t, ok)
		return current + "b", nil
	}))
	value, _, err = store.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, "ab", value)

	require.NoError(t, store.Remove(ctx, "session"))
	require.NoError(t, store.Remove(ctx, "session"))
	_, ok, err = store.Get(ctx, "session")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = kv.DeviceScope(repo, "dev-2").Get(ctx, "counter")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostgresAuditRepository(t *testing.T) {
	pool := postgresPool(t)
	ctx := context.Background()
	repo := NewAuditRepository(pool)
	require.NoError(t, repo.EnsureSchema(ctx))
	_, err := pool.Exec(ctx, `TRUNCATE auth_audit`)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, repo.Insert(ctx, models.AuditEntry{Type: "login_failed", Identifier: "nobody", DeviceID: "dev-1", At: now.Add(-time.Minute)}))
	require.NoError(t, repo.Insert(ctx, models.AuditEntry{Type: "login", UserID: "u1", DeviceID: "dev-1", At: now}))

	entries, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "login", entries[0].Type)
	assert.Equal(t, "u1", entries[0].UserID)
	assert.True(t, now.Equal(entries[0].At))
	assert.Equal(t, "nobody", entries[1].Identifier)

	entries, err = repo.ListRecent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMongoCredentialStoreContract(t *testing.T) {
	uri := os.Getenv(mongoURIEnv)
	if uri == "" {
		t.Skipf("%s not set", mongoURIEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	require.NoError(t, client.Ping(ctx, nil))

	count := 0
	credentialStoreContract(t, func(t *testing.T) CredentialStore {
		count++
		db := client.Database(fmt.Sprintf("plantops_test_%d_%d", time.Now().UnixNano(), count))
		t.Cleanup(func() { _ = db.Drop(context.Background()) })

		repo := NewMongoUserRepository(db)
		require.NoError(t, repo.EnsureIndexes(context.Background()))
		return repo
	})
}
