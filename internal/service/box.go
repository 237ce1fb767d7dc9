package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/tellus/tellus/internal/cache"
	"github.com/tellus/tellus/internal/gate"
	"github.com/tellus/tellus/internal/metrics"
	"github.com/tellus/tellus/internal/model"
	"github.com/tellus/tellus/internal/repository"
	"github.com/tellus/tellus/internal/storage"
	"github.com/tellus/tellus/internal/token"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 2000

	// attachmentCleanupParallelism bounds concurrent object deletes.
	attachmentCleanupParallelism = 8
)

// BoxService handles complaint box management and public lookups.
type BoxService struct {
	repo       BoxStore
	cache      BoxCache
	objects    storage.Store
	categories CategorySource
	tokens     *token.Generator
	logger     *slog.Logger
	metrics    metrics.Recorder
}

// NewBoxService creates a new BoxService.
func NewBoxService(repo BoxStore, boxCache BoxCache, objects storage.Store, categories CategorySource, logger *slog.Logger, recorder metrics.Recorder) *BoxService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &BoxService{
		repo:       repo,
		cache:      boxCache,
		objects:    objects,
		categories: categories,
		tokens:     token.NewGenerator(repo.BoxTokenExists),
		logger:     logger.With("component", "service.box"),
		metrics:    recorder,
	}
}

// CreateBoxInput defines input for creating a box.
type CreateBoxInput struct {
	AdminID     string
	Title       string
	Description string
	Secret      string
	Category    string
}

// CreateBox creates a box with a fresh share token.
func (s *BoxService) CreateBox(ctx context.Context, input CreateBoxInput) (*model.Box, error) {
	title, err := normalizeTitle(input.Title)
	if err != nil {
		return nil, err
	}
	description, err := normalizeDescription(input.Description)
	if err != nil {
		return nil, err
	}
	category := strings.TrimSpace(input.Category)
	if category != "" && !s.categories.Has(category) {
		return nil, ErrUnknownCategory
	}

	secretHash, err := gate.HashSecret(input.Secret)
	if err != nil {
		return nil, fmt.Errorf("hash box secret: %w", err)
	}

	shareToken, err := s.tokens.Box(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate box token: %w", err)
	}

	now := time.Now().UTC()
	box := &model.Box{
		ID:          ulid.Make().String(),
		AdminID:     input.AdminID,
		Title:       title,
		Description: description,
		SecretHash:  secretHash,
		Token:       shareToken,
		Category:    category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.CreateBox(ctx, box); err != nil {
		if errors.Is(err, repository.ErrTokenExists) {
			return nil, fmt.Errorf("create box: %w", token.ErrTokenExhausted)
		}
		return nil, fmt.Errorf("create box: %w", err)
	}

	s.metrics.IncBoxCreated()
	return box, nil
}

// ListBoxes returns the admin's boxes with dashboard aggregates.
func (s *BoxService) ListBoxes(ctx context.Context, adminID string) ([]*model.BoxWithStats, error) {
	return s.repo.ListBoxesWithStats(ctx, adminID)
}

// GetOwnedBox returns a box the admin owns.
func (s *BoxService) GetOwnedBox(ctx context.Context, id, adminID string) (*model.Box, error) {
	box, err := s.repo.GetOwnedBox(ctx, id, adminID)
	if err != nil {
		if errors.Is(err, repository.ErrBoxNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return box, nil
}

// UpdateBoxInput defines input for updating a box. Nil fields are left
// unchanged; an empty Secret removes the gate.
type UpdateBoxInput struct {
	ID          string
	AdminID     string
	Title       *string
	Description *string
	Secret      *string
	Category    *string
}

// UpdateBox edits an owned box and invalidates its cache entry.
func (s *BoxService) UpdateBox(ctx context.Context, input UpdateBoxInput) (*model.Box, error) {
	box, err := s.GetOwnedBox(ctx, input.ID, input.AdminID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		title, err := normalizeTitle(*input.Title)
		if err != nil {
			return nil, err
		}
		box.Title = title
	}
	if input.Description != nil {
		description, err := normalizeDescription(*input.Description)
		if err != nil {
			return nil, err
		}
		box.Description = description
	}
	if input.Category != nil {
		category := strings.TrimSpace(*input.Category)
		if category != "" && !s.categories.Has(category) {
			return nil, ErrUnknownCategory
		}
		box.Category = category
	}
	if input.Secret != nil {
		hash, err := gate.HashSecret(*input.Secret)
		if err != nil {
			return nil, fmt.Errorf("hash box secret: %w", err)
		}
		box.SecretHash = hash
	}

	if err := s.repo.UpdateBox(ctx, box); err != nil {
		if errors.Is(err, repository.ErrBoxNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.metrics.IncBoxUpdated()
	s.invalidate(ctx, box.Token)
	return box, nil
}

// DeleteBox removes an owned box with its complaints, feedback and
// attachments.
func (s *BoxService) DeleteBox(ctx context.Context, id, adminID string) error {
	box, err := s.GetOwnedBox(ctx, id, adminID)
	if err != nil {
		return err
	}

	keys, err := s.repo.DeleteBox(ctx, id, adminID)
	if err != nil {
		if errors.Is(err, repository.ErrBoxNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.metrics.IncBoxDeleted()
	s.invalidate(ctx, box.Token)
	deleteObjects(ctx, s.objects, keys, s.logger)
	return nil
}

// Resolve looks a box up by share token. This is the public hot path:
// cache first, then a negative-cache check, then the database.
func (s *BoxService) Resolve(ctx context.Context, shareToken string) (*model.Box, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveBoxLookupDuration(time.Since(start))
	}()

	if !token.IsBoxToken(shareToken) {
		return nil, ErrNotFound
	}

	if s.cache != nil {
		box, err := s.cache.GetBox(ctx, shareToken)
		if err == nil {
			s.metrics.IncBoxCacheHit()
			return box, nil
		}
		if errors.Is(err, cache.ErrCacheMiss) {
			s.metrics.IncBoxCacheMiss()
			if negative, _ := s.cache.IsNegativelyCached(ctx, shareToken); negative {
				return nil, ErrNotFound
			}
		} else {
			s.logger.Warn("box cache read failed", "error", err)
		}
	}

	box, err := s.repo.GetBoxByToken(ctx, shareToken)
	if err != nil {
		if errors.Is(err, repository.ErrBoxNotFound) {
			if s.cache != nil {
				_ = s.cache.SetNegativeCache(ctx, shareToken)
			}
			return nil, ErrNotFound
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetBox(ctx, box); err != nil {
			s.logger.Warn("box cache backfill failed", "error", err)
		}
	}
	return box, nil
}

func (s *BoxService) invalidate(ctx context.Context, shareToken string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteBox(ctx, shareToken); err != nil {
		s.logger.Warn("box cache invalidation failed", "error", err)
	}
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrTitleRequired
	}
	if len([]rune(title)) > maxTitleLength {
		return "", fmt.Errorf("%w: title is limited to %d characters", ErrTextTooLong, maxTitleLength)
	}
	return title, nil
}

func normalizeDescription(description string) (string, error) {
	description = strings.TrimSpace(description)
	if len([]rune(description)) > maxDescriptionLength {
		return "", fmt.Errorf("%w: description is limited to %d characters", ErrTextTooLong, maxDescriptionLength)
	}
	return description, nil
}

// deleteObjects removes attachment objects with bounded parallelism.
// Failures are logged; the rows referencing them are already gone.
func deleteObjects(ctx context.Context, objects storage.Store, keys []string, logger *slog.Logger) {
	if objects == nil || len(keys) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(attachmentCleanupParallelism)
	for _, key := range keys {
		g.Go(func() error {
			if err := objects.Delete(gctx, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
				logger.Warn("attachment delete failed", "key", key, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
