package domain

import "time"

// User is the domain view of a remote user record.
// Empty Name or AvatarURL means the backend did not provide one.
type User struct {
	ID        int    `json:"id"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// CachedUser is a User as persisted by a UserStore.
// InsertedAt is nil until the record has been inserted with a timestamp.
type CachedUser struct {
	ID         int        `json:"id"`
	Name       string     `json:"name,omitempty"`
	AvatarURL  string     `json:"avatar_url,omitempty"`
	InsertedAt *time.Time `json:"inserted_at,omitempty"`
}

// ToCached converts the user into its not-yet-persisted local representation.
func (u User) ToCached() CachedUser {
	return CachedUser{ID: u.ID, Name: u.Name, AvatarURL: u.AvatarURL}
}

// ToUser drops the cache bookkeeping.
func (c CachedUser) ToUser() User {
	return User{ID: c.ID, Name: c.Name, AvatarURL: c.AvatarURL}
}
