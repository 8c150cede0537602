package location

import (
	"context"
	"fmt"

	"stokado/internal/core/id"
	"stokado/pkg/logger"
)

// Service provides business logic for the Location catalog.
type Service struct {
	repo Repository
}

// NewService creates a new Location service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create validates and persists a new location.
func (s *Service) Create(ctx context.Context, loc *Location) error {
	if err := loc.Validate(ctx); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, loc); err != nil {
		return fmt.Errorf("create location: %w", err)
	}
	logger.Info(ctx, "location created", "id", loc.ID, "code", loc.Code)
	return nil
}

// Update validates and persists location changes.
func (s *Service) Update(ctx context.Context, loc *Location) error {
	if err := loc.Validate(ctx); err != nil {
		return err
	}
	loc.Touch()
	return s.repo.Update(ctx, loc)
}

// GetByID retrieves a location.
func (s *Service) GetByID(ctx context.Context, locationID id.ID) (*Location, error) {
	return s.repo.GetByID(ctx, locationID)
}

// GetByCode retrieves a location by its unique code.
func (s *Service) GetByCode(ctx context.Context, code string) (*Location, error) {
	return s.repo.GetByCode(ctx, code)
}

// List returns locations, optionally only active ones.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]*Location, error) {
	return s.repo.List(ctx, activeOnly)
}

// SetActive flips the active flag. Deactivation keeps history; the location
// simply stops being considered by best-location searches.
func (s *Service) SetActive(ctx context.Context, locationID id.ID, active bool) error {
	loc, err := s.repo.GetByID(ctx, locationID)
	if err != nil {
		return err
	}
	loc.Active = active
	loc.Touch()
	if err := s.repo.Update(ctx, loc); err != nil {
		return fmt.Errorf("update location: %w", err)
	}
	logger.Info(ctx, "location active flag changed", "id", locationID, "active", active)
	return nil
}
