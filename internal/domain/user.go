// internal/domain/user.go
package domain

// User is a row of the users table.
type User struct {
	ID       int64  `db:"id" json:"id"`             // Generated by the store, never changed
	Username string `db:"username" json:"username"` // Unique, non-empty
}

// CreateUserRequest is the body of POST /users.
type CreateUserRequest struct {
	Username string `json:"username"`
}

// UpdateUserRequest is the body of PATCH /user.
type UpdateUserRequest struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}
