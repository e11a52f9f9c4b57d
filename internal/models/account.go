package models

import "time"

// Account is a registered participant of the chat engine.
type Account struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	Username     string     `db:"username" json:"username"`
	PasswordHash string     `db:"password_hash" json:"-"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
}

// PublicAccount is the listing/search view of an account.
type PublicAccount struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Public strips credentials and contact details.
func (a Account) Public() PublicAccount {
	return PublicAccount{ID: a.ID, Username: a.Username}
}
