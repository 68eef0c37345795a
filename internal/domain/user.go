package domain

// User is one entry of the roster. Entries are replaced wholesale by a roster
// refresh and are never deleted in place; a stale entry persists until the
// next refresh overwrites the set.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"profilePicUrl,omitempty"`
	IsOnline  bool   `json:"isOnline,omitempty"`
}
