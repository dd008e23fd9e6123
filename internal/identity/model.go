package identity

import "time"

// User represents a registered account owner.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Credentials carries registration/login input.
type Credentials struct {
	Username string
	Email    string
	Password string
}
