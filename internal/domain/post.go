package domain

// Post is a single feed entry. The owning user fields are optional and are only filled
// when the feed has resolved the author.
type Post struct {
	ID            int    `json:"id"`
	UserID        *int   `json:"user_id,omitempty"`
	UserName      string `json:"user_name,omitempty"`
	UserAvatarURL string `json:"user_avatar_url,omitempty"`
	Title         string `json:"title,omitempty"`
	Body          string `json:"body,omitempty"`
}
