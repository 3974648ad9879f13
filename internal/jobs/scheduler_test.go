package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plantops/portal/internal/models"
)

type staticUsers struct {
	users []models.User
	err   error
}

func (s staticUsers) List(context.Context) ([]models.User, error) { return s.users, s.err }

type memorySnapshots struct {
	objects map[string][]byte
}

func (m *memorySnapshots) PutSnapshot(_ context.Context, bucket, name string, data []byte) error {
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[bucket+"/"+name] = data
	return nil
}

func TestBackupWritesSnapshot(t *testing.T) {
	users := staticUsers{users: []models.User{
		{ID: "u1", Username: "OPERATOR1", NIK: "NIK001", PasswordHash: []byte("$argon2id$x"), Role: models.RoleBatchOperator},
		{ID: "u2", Username: "DRIVER1", NIK: "NIK002", PasswordHash: []byte("$argon2id$y"), Role: models.RoleMixerDriver, Location: models.LocationBekasi},
	}}
	snapshots := &memorySnapshots{}
	scheduler := NewScheduler(users, snapshots, nil, Options{BackupBucket: "backups"}, zerolog.Nop())
	scheduler.now = func() time.Time { return time.Date(2026, 10, 18, 2, 0, 0, 0, time.UTC) }

	name, err := scheduler.Backup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "credentials/20261018T020000Z.json", name)

	raw, ok := snapshots.objects["backups/"+name]
	require.True(t, ok)

	var doc snapshot
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Len(t, doc.Users, 2)
	assert.Equal(t, "NIK001", doc.Users[0].NIK)
	assert.Equal(t, []byte("$argon2id$y"), doc.Users[1].PasswordHash)
	assert.Equal(t, models.LocationBekasi, doc.Users[1].Location)
}

func TestBackupListFailure(t *testing.T) {
	snapshots := &memorySnapshots{}
	scheduler := NewScheduler(staticUsers{err: errors.New("storage offline")}, snapshots, nil, Options{BackupBucket: "backups"}, zerolog.Nop())

	_, err := scheduler.Backup(context.Background())
	assert.ErrorContains(t, err, "storage offline")
	assert.Empty(t, snapshots.objects)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	scheduler := NewScheduler(staticUsers{}, &memorySnapshots{}, nil, Options{BackupSchedule: "every day"}, zerolog.Nop())
	assert.Error(t, scheduler.Start())
}

func TestStartWithoutJobs(t *testing.T) {
	scheduler := NewScheduler(staticUsers{}, nil, nil, Options{BackupSchedule: "0 0 2 * * *"}, zerolog.Nop())
	require.NoError(t, scheduler.Start())
	<-scheduler.Stop().Done()
}
