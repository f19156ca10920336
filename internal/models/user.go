// Package models contains data structures for the application's domain models.
package models

import (
	"encoding/json"
	"strings"
	"time"
)

// User is a registered account. Authors and readers are both users.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"size:150;uniqueIndex;not null" json:"username"`
	Email     string    `gorm:"size:254" json:"-"`
	Password  string    `gorm:"not null" json:"-"`
	FirstName string    `gorm:"size:150" json:"first_name"`
	LastName  string    `gorm:"size:150" json:"last_name"`
	IsAdmin   bool      `gorm:"not null;default:false" json:"-"`
	CreatedAt time.Time `json:"date_joined"`
	UpdatedAt time.Time `json:"-"`
}

// FullName joins first and last name, falling back to the username.
func (u User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// MarshalJSON renders the public profile shown next to posts and comments.
func (u User) MarshalJSON() ([]byte, error) {
	type profile User
	return json.Marshal(struct {
		profile
		FullName string `json:"full_name"`
	}{profile(u), u.FullName()})
}
