package store

import "time"

// Profile mirrors an authenticated identity one-to-one. Its ID is the
// identity provider's user id, not a generated key.
type Profile struct {
	ID        string
	FullName  string
	AvatarURL string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Note is a user-owned text record. OwnerID is fixed at creation and
// never updated. Summary is nil until the summarization flow writes it.
type Note struct {
	ID        string
	OwnerID   string
	Title     string
	Content   string
	Summary   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}
