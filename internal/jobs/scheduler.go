package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"plantops/portal/internal/models"
)

type UserLister interface {
	List(ctx context.Context) ([]models.User, error)
}

type SnapshotStore interface {
	PutSnapshot(ctx context.Context, bucket, name string, data []byte) error
}

type StreamTrimmer interface {
	Trim(ctx context.Context) (int64, error)
}

type Options struct {
	// BackupSchedule is a six-field cron expression. Empty disables the backup job.
	BackupSchedule string
	BackupBucket   string
	// TrimSchedule is a six-field cron expression. Empty disables audit trimming.
	TrimSchedule string
}

type Scheduler struct {
	cron      *cron.Cron
	users     UserLister
	snapshots SnapshotStore
	trimmer   StreamTrimmer
	opts      Options
	log       zerolog.Logger
	now       func() time.Time
}

// NewScheduler wires the optional jobs. A nil snapshots or trimmer disables the job
// that needs it.
func NewScheduler(users UserLister, snapshots SnapshotStore, trimmer StreamTrimmer, opts Options, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:      c,
		users:     users,
		snapshots: snapshots,
		trimmer:   trimmer,
		opts:      opts,
		log:       log,
		now:       time.Now,
	}
}

func (s *Scheduler) Start() error {
	if s.snapshots != nil && s.opts.BackupSchedule != "" {
		if _, err := s.cron.AddFunc(s.opts.BackupSchedule, s.runBackup); err != nil {
			return fmt.Errorf("schedule backup: %w", err)
		}
	}
	if s.trimmer != nil && s.opts.TrimSchedule != "" {
		if _, err := s.cron.AddFunc(s.opts.TrimSchedule, s.runTrim); err != nil {
			return fmt.Errorf("schedule audit trim: %w", err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts scheduling. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

type snapshotUser struct {
	ID           string          `json:"id"`
	Username     string          `json:"username"`
	NIK          string          `json:"nik"`
	PasswordHash []byte          `json:"passwordHash"`
	Role         models.Role     `json:"role"`
	Location     models.Location `json:"location,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type snapshot struct {
	TakenAt time.Time      `json:"takenAt"`
	Users   []snapshotUser `json:"users"`
}

func (s *Scheduler) runBackup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	name, err := s.Backup(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("credential backup failed")
		return
	}
	s.log.Info().Str("object", name).Msg("credential backup stored")
}

// Backup writes every credential record, hashes included, to the backup bucket and
// returns the object name.
func (s *Scheduler) Backup(ctx context.Context) (string, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return "", fmt.Errorf("list users: %w", err)
	}

	taken := s.now().UTC()
	doc := snapshot{TakenAt: taken, Users: make([]snapshotUser, 0, len(users))}
	for _, user := range users {
		doc.Users = append(doc.Users, snapshotUser{
			ID:           user.ID,
			Username:     user.Username,
			NIK:          user.NIK,
			PasswordHash: user.PasswordHash,
			Role:         user.Role,
			Location:     user.Location,
			CreatedAt:    user.CreatedAt,
			UpdatedAt:    user.UpdatedAt,
		})
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	name := fmt.Sprintf("credentials/%s.json", taken.Format("20060102T150405Z"))
	if err := s.snapshots.PutSnapshot(ctx, s.opts.BackupBucket, name, data); err != nil {
		return "", err
	}
	return name, nil
}

func (s *Scheduler) runTrim() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := s.trimmer.Trim(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("audit stream trim failed")
		return
	}
	s.log.Debug().Int64("removed", removed).Msg("audit stream trimmed")
}
