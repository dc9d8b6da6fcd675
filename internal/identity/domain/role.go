package domain

import "time"

type Role struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Built-in role names seeded at startup.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)
