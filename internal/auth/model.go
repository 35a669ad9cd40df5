package auth

import "time"

// User is a credential record as stored in the users table. Password
// holds a bcrypt hash, or the raw password for legacy records that
// have not been migrated yet.
type User struct {
	ID        int64
	Username  string
	Password  string
	Role      Role
	LastLogin *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserInfo is the public projection of a user returned to clients.
type UserInfo struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

type LoginResult struct {
	User      UserInfo `json:"user"`
	Token     string   `json:"token"`
	ExpiresIn int64    `json:"expires_in"`
	TokenType string   `json:"token_type"`
}

type RegisterResult struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

type PasswordChangeResult struct {
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	ChangedAt time.Time `json:"changed_at"`
}
