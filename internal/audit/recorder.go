package audit

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"plantops/portal/internal/models"
)

// Sink persists audit entries. repository.AuditRepository writes them to Postgres.
type Sink interface {
	Insert(ctx context.Context, entry models.AuditEntry) error
}

// Recorder is the Handler the auditor runs: it logs every event and stores it.
type Recorder struct {
	sink Sink
	log  zerolog.Logger
}

func NewRecorder(sink Sink, log zerolog.Logger) *Recorder {
	return &Recorder{sink: sink, log: log}
}

func (r *Recorder) Handle(ctx context.Context, event Event) error {
	entry := models.AuditEntry{
		Type:       string(event.Type),
		UserID:     event.UserID,
		Identifier: event.Identifier,
		DeviceID:   event.DeviceID,
		ActorID:    event.ActorID,
		At:         event.At,
	}

	logEvent := r.log.Info()
	if event.Type == EventLoginFailed {
		logEvent = r.log.Warn()
	}
	logEvent.
		Str("type", entry.Type).
		Str("user_id", entry.UserID).
		Str("identifier", entry.Identifier).
		Str("device_id", entry.DeviceID).
		Time("at", entry.At).
		Msg("audit event")

	if err := r.sink.Insert(ctx, entry); err != nil {
		return fmt.Errorf("store audit entry: %w", err)
	}
	return nil
}
