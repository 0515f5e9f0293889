package model

import "time"

// Role names carried in the access token.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User represents an application user record as stored in the
// `users` table.  Tickets reference their owner by Username.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Username     – unique login name; compared case-insensitively on cancel.
//  Email        – contact address, may be empty.
//  PasswordHash – bcrypt hashed password.
//  Role         – USER or ADMIN.
//  CreatedAt    – timestamp of creation.
type User struct {
	ID           uint64    // users.id
	Username     string    // users.username
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	CreatedAt    time.Time // users.created_at
}
