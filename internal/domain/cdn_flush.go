package domain

import (
	"errors"
	"time"
)

var (
	ErrFlushNotFound = errors.New("cdn flush not found")
	ErrFlushExists   = errors.New("cdn flush already recorded")
)

// CDNFlush is one invalidation batch submitted to a CDN.
type CDNFlush struct {
	ID        string
	Backend   string
	Paths     []string
	Status    CDNStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
