// Package service implements local user mutations. Every successful write is
// committed to the store first and only then announced on the bus.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"userprofile/internal/platform/metrics"
	"userprofile/internal/users/models"
	"userprofile/pkg/platform/sentinel"
)

// Store is the user persistence the service writes to.
type Store interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.User, error)
	Insert(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	List(ctx context.Context) ([]*models.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// LifecyclePublisher announces committed changes. Implementations must not
// block or fail the caller.
type LifecyclePublisher interface {
	PublishUserCreated(ctx context.Context, user *models.User)
	PublishUserUpdated(ctx context.Context, user *models.User)
}

// CreateRequest describes a locally registered user.
type CreateRequest struct {
	ExternalID  string `json:"auth0_id"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	PictureURL  string `json:"picture_url"`
	Bio         string `json:"bio"`
	Address     string `json:"address"`
	PhoneNumber string `json:"phone_number"`
	Role        string `json:"role"`
}

// Service reads, creates, updates and deletes users.
type Service struct {
	store     Store
	publisher LifecyclePublisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New constructs a Service.
func New(store Store, publisher LifecyclePublisher, opts ...Option) *Service {
	s := &Service{
		store:     store,
		publisher: publisher,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a user by local id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.store.FindByID(ctx, id)
}

// GetByExternalID returns a user by identity-provider id.
func (s *Service) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, fmt.Errorf("%w: auth0_id is required", sentinel.ErrInvalidInput)
	}
	return s.store.FindByExternalID(ctx, externalID)
}

// List returns every local user.
func (s *Service) List(ctx context.Context) ([]*models.User, error) {
	users, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Delete removes a user. No lifecycle event is published for deletions.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.logger.InfoContext(ctx, "user deleted", "user_id", id)
	return nil
}

// Create stores a new user and publishes UserCreated.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.User, error) {
	req.ExternalID = strings.TrimSpace(req.ExternalID)
	req.Email = strings.TrimSpace(req.Email)
	if req.ExternalID == "" {
		return nil, fmt.Errorf("%w: auth0_id is required", sentinel.ErrInvalidInput)
	}
	if !strings.Contains(req.Email, "@") {
		return nil, fmt.Errorf("%w: email is invalid", sentinel.ErrInvalidInput)
	}

	now := s.now().UTC()
	first, last := models.SplitName(req.DisplayName)
	user := &models.User{
		ID:          uuid.New(),
		ExternalID:  req.ExternalID,
		Username:    strings.TrimSpace(req.Username),
		Email:       req.Email,
		FirstName:   first,
		LastName:    last,
		Role:        req.Role,
		DisplayName: strings.TrimSpace(req.DisplayName),
		PictureURL:  strings.TrimSpace(req.PictureURL),
		Bio:         strings.TrimSpace(req.Bio),
		Address:     strings.TrimSpace(req.Address),
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if user.Username == "" {
		user.Username = models.DeriveUsername(user.DisplayName, user.Email)
	}
	if user.Role == "" {
		user.Role = models.DefaultRole
	}

	if err := s.store.Insert(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, fmt.Errorf("user %s already exists: %w", req.ExternalID, err)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	if s.metrics != nil {
		s.metrics.IncrementUsersCreated()
	}
	s.logger.InfoContext(ctx, "user created",
		"user_id", user.ID,
		"external_id", user.ExternalID,
	)

	s.publisher.PublishUserCreated(ctx, user)
	return user, nil
}

// Update merges changes into an existing user. UserUpdated is published
// only when something changed.
func (s *Service) Update(ctx context.Context, id uuid.UUID, changes models.ProfileChanges) (*models.User, error) {
	changes.Email = strings.TrimSpace(changes.Email)
	changes.DisplayName = strings.TrimSpace(changes.DisplayName)
	changes.PictureURL = strings.TrimSpace(changes.PictureURL)
	changes.Bio = strings.TrimSpace(changes.Bio)
	changes.Address = strings.TrimSpace(changes.Address)
	changes.PhoneNumber = strings.TrimSpace(changes.PhoneNumber)
	if changes.Email != "" && !strings.Contains(changes.Email, "@") {
		return nil, fmt.Errorf("%w: email is invalid", sentinel.ErrInvalidInput)
	}

	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !user.Apply(changes) {
		return user, nil
	}
	user.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	if s.metrics != nil {
		s.metrics.IncrementUsersUpdated()
	}
	s.logger.InfoContext(ctx, "user updated",
		"user_id", user.ID,
		"external_id", user.ExternalID,
	)

	s.publisher.PublishUserUpdated(ctx, user)
	return user, nil
}
