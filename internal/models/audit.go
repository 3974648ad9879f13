package models

import "time"

type AuditEntry struct {
	ID         int64     `json:"id"`
	Type       string    `json:"type"`
	UserID     string    `json:"userId,omitempty"`
	Identifier string    `json:"identifier,omitempty"`
	DeviceID   string    `json:"deviceId,omitempty"`
	ActorID    string    `json:"actorId,omitempty"`
	At         time.Time `json:"at"`
}
