package models

import "time"

// Conversation is a fixed-membership message thread.
type Conversation struct {
	ID        int       `db:"id" json:"id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// User is the participant identity as stored alongside conversations.
type User struct {
	ID          int    `db:"id" json:"id"`
	DisplayName string `db:"display_name" json:"display_name"`
	Email       string `db:"email" json:"email"`
	AvatarURL   string `db:"avatar_url" json:"avatar_url"`
}

// Name returns the user's presentable name, falling back to the email.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}
