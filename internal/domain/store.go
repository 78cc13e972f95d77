package domain

import (
	"context"
	"time"
)

// UserStore is the persistent backend for cached user records.
// Implementations must serialise writes against the same user id; calls may come from
// any goroutine.
type UserStore interface {
	// RetrieveUser returns (nil, nil) when no record exists for the id.
	RetrieveUser(ctx context.Context, userID int) (*CachedUser, error)

	RetrieveAllUsers(ctx context.Context) ([]CachedUser, error)

	// InsertUser stores the record with the given timestamp, replacing any record for the same id.
	InsertUser(ctx context.Context, user CachedUser, timestamp time.Time) error

	// DeleteUsers removes the records with the ids of the given users in a single batch.
	DeleteUsers(ctx context.Context, users []CachedUser) error

	// ClearUsers removes every cached user record.
	ClearUsers(ctx context.Context) error
}

// ImageDataStore is the persistent backend for cached avatar bytes.
// There is at most one blob per user id; inserting again overwrites it.
type ImageDataStore interface {
	// RetrieveImageData returns (nil, nil) when no blob exists for the user.
	RetrieveImageData(ctx context.Context, userID int) ([]byte, error)

	InsertImageData(ctx context.Context, data []byte, userID int, sourceURL string) error
}
