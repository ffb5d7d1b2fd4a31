package repository

import (
	"context"

	"voeventdb/internal/models"

	"gorm.io/gorm"
)

type IngestRunRepository interface {
	Create(ctx context.Context, run *models.IngestRun) error
	GetLastN(ctx context.Context, n int) ([]*models.IngestRun, error)
}

type ingestRunRepository struct {
	db *gorm.DB
}

func NewIngestRunRepository(db *gorm.DB) IngestRunRepository {
	return &ingestRunRepository{db: db}
}

func (r *ingestRunRepository) Create(ctx context.Context, run *models.IngestRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *ingestRunRepository) GetLastN(ctx context.Context, n int) ([]*models.IngestRun, error) {
	var runs []*models.IngestRun
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(n).
		Find(&runs).
		Error
	return runs, err
}
