package service

import (
	"context"
	"time"

	"yatube/internal/events"
	"yatube/internal/models"
	"yatube/internal/observability"
	"yatube/internal/repository"
)

type FollowService struct {
	followRepo repository.FollowRepository
	userRepo   repository.UserRepository
	publisher  events.Publisher
}

func NewFollowService(
	followRepo repository.FollowRepository,
	userRepo repository.UserRepository,
	publisher events.Publisher,
) *FollowService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &FollowService{
		followRepo: followRepo,
		userRepo:   userRepo,
		publisher:  publisher,
	}
}

// Follow subscribes userID to the named author. Following yourself is a no-op,
// as is following someone twice. The author is returned for the redirect.
func (s *FollowService) Follow(ctx context.Context, userID uint, username string) (*models.User, error) {
	if userID == 0 {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	author, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if author.ID == userID {
		return author, nil
	}

	created, err := s.followRepo.Follow(ctx, userID, author.ID)
	if err != nil {
		return nil, err
	}
	if created {
		observability.FollowChanges.WithLabelValues("follow").Inc()
		publish(ctx, s.publisher, events.FollowEvent{
			UserID:   userID,
			AuthorID: author.ID,
			Followed: true,
			At:       time.Now().UTC(),
		})
	}
	return author, nil
}

// Unfollow removes the subscription if there is one.
func (s *FollowService) Unfollow(ctx context.Context, userID uint, username string) (*models.User, error) {
	if userID == 0 {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	author, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	removed, err := s.followRepo.Unfollow(ctx, userID, author.ID)
	if err != nil {
		return nil, err
	}
	if removed {
		observability.FollowChanges.WithLabelValues("unfollow").Inc()
		publish(ctx, s.publisher, events.FollowEvent{
			UserID:   userID,
			AuthorID: author.ID,
			At:       time.Now().UTC(),
		})
	}
	return author, nil
}

func (s *FollowService) IsFollowing(ctx context.Context, userID, authorID uint) (bool, error) {
	if userID == 0 || userID == authorID {
		return false, nil
	}
	return s.followRepo.IsFollowing(ctx, userID, authorID)
}
