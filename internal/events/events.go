// Package events publishes domain events to the message broker.
package events

import (
	"context"
	"time"
)

// Subjects used on the broker.
const (
	SubjectPostCreated    = "yatube.post.created"
	SubjectPostEdited     = "yatube.post.edited"
	SubjectCommentCreated = "yatube.comment.created"
	SubjectFollowCreated  = "yatube.follow.created"
	SubjectFollowDeleted  = "yatube.follow.deleted"
)

// Event is a message with a subject and the user who caused it.
type Event interface {
	Subject() string
	ActorID() uint
}

// Publisher delivers events. Delivery is best effort; callers log failures
// and never fail the request because of them.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close()
}

// PostEvent is emitted when a post is created or edited.
type PostEvent struct {
	Kind     string    `json:"-"`
	PostID   uint      `json:"post_id"`
	AuthorID uint      `json:"author_id"`
	Author   string    `json:"author,omitempty"`
	GroupID  *uint     `json:"group_id,omitempty"`
	Excerpt  string    `json:"excerpt"`
	HasImage bool      `json:"has_image"`
	At       time.Time `json:"at"`
}

func (e PostEvent) Subject() string {
	if e.Kind == SubjectPostEdited {
		return SubjectPostEdited
	}
	return SubjectPostCreated
}

func (e PostEvent) ActorID() uint { return e.AuthorID }

// CommentEvent is emitted when a comment is left under a post.
type CommentEvent struct {
	CommentID    uint      `json:"comment_id"`
	PostID       uint      `json:"post_id"`
	PostAuthorID uint      `json:"post_author_id"`
	AuthorID     uint      `json:"author_id"`
	At           time.Time `json:"at"`
}

func (e CommentEvent) Subject() string { return SubjectCommentCreated }
func (e CommentEvent) ActorID() uint   { return e.AuthorID }

// FollowEvent is emitted when a follow edge appears or disappears.
type FollowEvent struct {
	UserID   uint      `json:"user_id"`
	AuthorID uint      `json:"author_id"`
	Followed bool      `json:"followed"`
	At       time.Time `json:"at"`
}

func (e FollowEvent) Subject() string {
	if e.Followed {
		return SubjectFollowCreated
	}
	return SubjectFollowDeleted
}

func (e FollowEvent) ActorID() uint { return e.UserID }

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close()                               {}

// Gated forwards events only when allow returns true for the event's actor.
type Gated struct {
	next  Publisher
	allow func(actorID uint) bool
}

// NewGated wraps next with a per-actor switch.
func NewGated(next Publisher, allow func(actorID uint) bool) *Gated {
	return &Gated{next: next, allow: allow}
}

func (g *Gated) Publish(ctx context.Context, ev Event) error {
	if g.allow != nil && !g.allow(ev.ActorID()) {
		return nil
	}
	return g.next.Publish(ctx, ev)
}

func (g *Gated) Close() { g.next.Close() }
