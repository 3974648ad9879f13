// Package audit records authentication and user-administration events on a Redis
// stream and replays them into Postgres.
package audit

import (
	"context"
	"fmt"
	"time"
)

type EventType string

const (
	EventLoginSucceeded  EventType = "login.succeeded"
	EventLoginFailed     EventType = "login.failed"
	EventLogout          EventType = "logout"
	EventPasswordChanged EventType = "password.changed"
	EventUserCreated     EventType = "user.created"
	EventUserUpdated     EventType = "user.updated"
	EventUserDeleted     EventType = "user.deleted"
)

type Event struct {
	Type       EventType
	UserID     string
	Identifier string
	DeviceID   string
	ActorID    string
	At         time.Time
}

func (e Event) values() map[string]any {
	return map[string]any{
		"type":       string(e.Type),
		"userId":     e.UserID,
		"identifier": e.Identifier,
		"deviceId":   e.DeviceID,
		"actorId":    e.ActorID,
		"at":         e.At.UTC().Format(time.RFC3339Nano),
	}
}

func eventFromValues(values map[string]any) (Event, error) {
	str := func(key string) string {
		s, _ := values[key].(string)
		return s
	}

	event := Event{
		Type:       EventType(str("type")),
		UserID:     str("userId"),
		Identifier: str("identifier"),
		DeviceID:   str("deviceId"),
		ActorID:    str("actorId"),
	}
	if event.Type == "" {
		return Event{}, fmt.Errorf("event without type")
	}
	at, err := time.Parse(time.RFC3339Nano, str("at"))
	if err != nil {
		return Event{}, fmt.Errorf("parse event time: %w", err)
	}
	event.At = at
	return event, nil
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
