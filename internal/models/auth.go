package models

import "github.com/golang-jwt/jwt/v5"

// UserInfo describes the authenticated caller as seen by enrollment flows.
type UserInfo struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Phone string   `json:"phone"`
	Role  UserRole `json:"role"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Phone    string   `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

// Identity maps token claims onto the identity contract.
func (c *JWTClaims) Identity() UserInfo {
	return UserInfo{ID: c.UserID, Name: c.FullName, Email: c.Email, Phone: c.Phone, Role: c.Role}
}
