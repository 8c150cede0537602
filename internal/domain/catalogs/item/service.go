package item

import (
	"context"
	"fmt"

	"stokado/internal/core/id"
	"stokado/pkg/logger"
)

// Service provides business logic for the Item catalog.
type Service struct {
	repo Repository
}

// NewService creates a new Item service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create validates and persists a new item.
func (s *Service) Create(ctx context.Context, it *Item) error {
	if err := it.Validate(ctx); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, it); err != nil {
		return fmt.Errorf("create item: %w", err)
	}
	logger.Info(ctx, "item created", "id", it.ID, "code", it.Code)
	return nil
}

// Update validates and persists item changes.
func (s *Service) Update(ctx context.Context, it *Item) error {
	if err := it.Validate(ctx); err != nil {
		return err
	}
	it.Touch()
	if err := s.repo.Update(ctx, it); err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// GetByID retrieves an item.
func (s *Service) GetByID(ctx context.Context, itemID id.ID) (*Item, error) {
	return s.repo.GetByID(ctx, itemID)
}

// GetByCode retrieves an item by its unique code.
func (s *Service) GetByCode(ctx context.Context, code string) (*Item, error) {
	return s.repo.GetByCode(ctx, code)
}

// List returns catalog items.
func (s *Service) List(ctx context.Context, includeDeleted bool) ([]*Item, error) {
	return s.repo.List(ctx, includeDeleted)
}

// Delete soft-deletes an item. Ledger history referencing it stays intact.
func (s *Service) Delete(ctx context.Context, itemID id.ID) error {
	it, err := s.repo.GetByID(ctx, itemID)
	if err != nil {
		return err
	}
	it.MarkDeleted()
	it.Touch()
	return s.repo.Update(ctx, it)
}
