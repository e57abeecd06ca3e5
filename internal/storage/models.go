package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist or belongs
// to another owner.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when inserting a record whose ID is taken.
var ErrAlreadyExists = errors.New("already exists")

// Event types recorded in the application history.
const (
	EventCreated       = "created"
	EventUpdated       = "updated"
	EventStatusChanged = "status_changed"
	EventDeleted       = "deleted"
)

type Event struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"applicationId"`
	OwnerID       string    `json:"-"`
	Type          string    `json:"type"`
	Details       string    `json:"details"`
	CreatedAt     time.Time `json:"createdAt"`
}
