package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"yatube/internal/events"
	"yatube/internal/models"
	"yatube/internal/repository"
	"yatube/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// memoryStore is an in-memory storage.ImageStore.
type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (s *memoryStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if s.putErr != nil {
		return s.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memoryStore) URL(key string) string { return "/media/" + key }

func (s *memoryStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Subject())
	}
	return out
}

type fixture struct {
	db        *gorm.DB
	store     *memoryStore
	publisher *recordingPublisher
	posts     *PostService
	comments  *CommentService
	follows   *FollowService
	users     *UserService
	groups    *GroupService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	store := newMemoryStore()
	pub := &recordingPublisher{}

	postRepo := repository.NewPostRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	userRepo := repository.NewUserRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	followRepo := repository.NewFollowRepository(db)
	images := NewImageService(store, nil)

	return &fixture{
		db:        db,
		store:     store,
		publisher: pub,
		posts:     NewPostService(postRepo, groupRepo, userRepo, commentRepo, followRepo, images, pub, 10),
		comments:  NewCommentService(commentRepo, postRepo, pub),
		follows:   NewFollowService(followRepo, userRepo, pub),
		users:     NewUserService(userRepo).WithBcryptCost(4),
		groups:    NewGroupService(groupRepo),
	}
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func requireAppError(t *testing.T, err error, code string) *models.AppError {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
	return appErr
}

func requireFieldError(t *testing.T, err error, field string) {
	t.Helper()
	appErr := requireAppError(t, err, models.CodeValidation)
	assert.NotEmpty(t, appErr.Fields[field], "expected error on field %q, got %v", field, appErr.Fields)
}
