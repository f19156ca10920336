package models

import "time"

// Group is a curated community that posts may optionally belong to.
// Groups are managed by administrators only.
type Group struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:200;not null" json:"title"`
	Slug        string    `gorm:"size:50;uniqueIndex;not null" json:"slug"`
	Description string    `gorm:"type:text;not null;default:''" json:"description"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}

// TableName keeps the table name explicit since "groups" is a keyword in some dialects.
func (Group) TableName() string {
	return "groups"
}
