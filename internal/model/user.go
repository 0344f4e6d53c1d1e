// Package model defines the data structures used throughout the application.
package model

import "time"

// Role separates ordinary members from administrators. Only admins may edit
// the market or act on another user's purchases.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the account record owned by the external user-management
// component. The engine only ever writes Balance, Avatar and Title, and
// Balance only through the currency ledger.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	Balance   int64     `json:"balance"` // never negative
	Avatar    string    `json:"avatar"`  // set by icon redemption
	Title     string    `json:"title"`   // set by title redemption
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Actor is the authenticated caller of an operation, as asserted by the
// token on the request.
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
