package domain

import "errors"

// ErrNoMediaID is returned when a media ID is required but not assigned yet.
var ErrNoMediaID = errors.New("no media ID")

// MediaID identifies a persisted media. The empty value means the media
// has not been persisted yet.
type MediaID string

// IsZero reports whether no identity has been assigned.
func (id MediaID) IsZero() bool {
	return id == ""
}

// String returns the string representation of the MediaID.
func (id MediaID) String() string {
	return string(id)
}
