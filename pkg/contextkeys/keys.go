package contextkeys

// contextKey is an unexported type for context keys to avoid collisions.
type contextKey string

const (
	// RequestIDKey is the context key for storing and retrieving a request ID.
	RequestIDKey contextKey = "request_id"

	// UserIDKey carries the user id a load is being performed for.
	UserIDKey contextKey = "user_id"

	// ResourceKey carries the resource kind ("user", "image", "posts", "session_token") of a load.
	ResourceKey contextKey = "resource"
)

// String makes contextKey satisfy fmt.Stringer to help with debugging/logging of keys themselves.
func (c contextKey) String() string {
	return string(c)
}
