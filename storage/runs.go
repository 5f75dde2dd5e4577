package storage

import (
	"context"
	"fmt"

	"citnet/models"
)

// CreateRun stores a new run record.
func (s *Store) CreateRun(ctx context.Context, run *models.Run) error {
	if err := s.DB.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun persists the final state of a run.
func (s *Store) FinishRun(ctx context.Context, run *models.Run) error {
	if err := s.DB.WithContext(ctx).Save(run).Error; err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	return nil
}

// Runs lists the most recent runs first.
func (s *Store) Runs(ctx context.Context, limit int) ([]models.Run, error) {
	q := s.DB.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var runs []models.Run
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
