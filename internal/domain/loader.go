package domain

import "context"

// Result is the completion envelope delivered by every asynchronous load.
// Exactly one of Value or Err is meaningful; a nil Err with a zero Value means "not found".
type Result[T any] struct {
	Value T
	Err   error
}

// Task is the handle returned for an in-flight load.
// Cancel is idempotent; after it returns no completion will be delivered for the task.
type Task interface {
	Cancel()
}

// UserLoader loads a single user by identifier.
// The completion is invoked at most once, on an arbitrary goroutine.
type UserLoader interface {
	LoadUser(ctx context.Context, userID int, completion func(Result[*User])) Task
}

// ImageDataLoader loads the avatar bytes of a user from the given source URL.
type ImageDataLoader interface {
	LoadImageData(ctx context.Context, imageURL string, userID int, completion func(Result[[]byte])) Task
}

// PostLoader loads the post feed.
type PostLoader interface {
	LoadPosts(ctx context.Context, completion func(Result[[]Post])) Task
}

// SessionTokenLoader obtains a session token from the authentication endpoint.
// LoadToken is the callback variant; Load blocks the calling goroutine until the
// request finishes and must not be used where the caller has to stay responsive.
type SessionTokenLoader interface {
	LoadToken(ctx context.Context, completion func(Result[string])) Task
	Load(ctx context.Context) (string, error)
}

// UserCache persists users for later local reads.
type UserCache interface {
	SaveUser(ctx context.Context, user User, completion func(error))
}

// ImageDataCache persists avatar bytes for later local reads.
type ImageDataCache interface {
	SaveImageData(ctx context.Context, data []byte, userID int, imageURL string, completion func(error))
}

// CacheValidator sweeps a local cache and drops expired entries.
type CacheValidator interface {
	ValidateCache(ctx context.Context, completion func(error))
}

// TokenProvider produces the credential attached to outbound requests.
type TokenProvider func(ctx context.Context) (string, error)
