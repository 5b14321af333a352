// Package domain contains core domain types for the anti-doomscroll backend.
package domain

import (
	"time"
)

// Profile holds per-phone account state synced from the mobile app.
type Profile struct {
	Phone      string    `json:"phone"`
	IsPremium  bool      `json:"is_premium"`
	LastActive time.Time `json:"last_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AccountDeletion reports how many rows an account delete removed.
type AccountDeletion struct {
	TodosDeleted    int64 `json:"todos_deleted"`
	ProfileDeleted  int64 `json:"profile_deleted"`
	CountersDeleted int64 `json:"usage_deleted"`
}
