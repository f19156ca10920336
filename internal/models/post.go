package models

import "time"

// Post is a text entry written by a user, optionally in a group and with an image.
type Post struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Text     string    `gorm:"type:text;not null" json:"text"`
	PubDate  time.Time `gorm:"not null;index;autoCreateTime" json:"pub_date"`
	AuthorID uint      `gorm:"not null;index" json:"author_id"`
	Author   User      `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE" json:"author"`
	GroupID  *uint     `gorm:"index" json:"group_id,omitempty"`
	Group    *Group    `gorm:"foreignKey:GroupID;constraint:OnDelete:SET NULL" json:"group,omitempty"`
	// Image is the storage key of the attached picture; empty when none.
	Image string `gorm:"size:255;not null;default:''" json:"image,omitempty"`
	// ImageURL is resolved from Image at read time.
	ImageURL string `gorm:"-" json:"image_url,omitempty"`
}

// Excerpt returns the first n runes of the text.
func (p *Post) Excerpt(n int) string {
	r := []rune(p.Text)
	if len(r) <= n {
		return p.Text
	}
	return string(r[:n])
}

// IsAuthoredBy reports whether userID wrote this post.
func (p *Post) IsAuthoredBy(userID uint) bool {
	return userID != 0 && p.AuthorID == userID
}
