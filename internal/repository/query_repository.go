package repository

import (
	"context"
	"net/url"

	"voeventdb/internal/models"
	"voeventdb/internal/query"

	"gorm.io/gorm"
)

// QueryRepository runs filtered queries. Filter and pagination problems come
// back as *apierror.Error; anything else is a database failure.
type QueryRepository interface {
	Count(ctx context.Context, filters url.Values) (int64, error)
	ListIvorns(ctx context.Context, filters url.Values, page query.Pagination) ([]string, error)
	ListSummaries(ctx context.Context, filters url.Values, page query.Pagination) ([]models.PacketSummary, error)
	ListIvornNRefs(ctx context.Context, filters url.Values, page query.Pagination) ([]models.IvornCount, error)
	ListIvornNCites(ctx context.Context, filters url.Values, page query.Pagination) ([]models.IvornCount, error)
	ListMissingRefs(ctx context.Context, filters url.Values, page query.Pagination) ([]string, error)
	ListIvornsWithMissingRefs(ctx context.Context, filters url.Values, page query.Pagination) ([]string, error)
	RoleCounts(ctx context.Context, filters url.Values) (map[string]int64, error)
	StreamCounts(ctx context.Context, filters url.Values) (map[string]int64, error)
	StreamRoleCounts(ctx context.Context, filters url.Values) (map[string]map[string]int64, error)
	AuthoredMonthCounts(ctx context.Context, filters url.Values) (map[string]int64, error)
}

type queryRepository struct {
	db       *gorm.DB
	registry *query.Registry
}

func NewQueryRepository(db *gorm.DB, registry *query.Registry) QueryRepository {
	return &queryRepository{db: db, registry: registry}
}

func (r *queryRepository) filtered(ctx context.Context, filters url.Values) (*gorm.DB, error) {
	return r.registry.Filtered(r.db.WithContext(ctx), filters)
}

func (r *queryRepository) Count(ctx context.Context, filters url.Values) (int64, error) {
	tx, err := r.filtered(ctx, filters)
	if err != nil {
		return 0, err
	}
	var count int64
	err = query.Count(tx).Count(&count).Error
	return count, err
}

func (r *queryRepository) ListIvorns(ctx context.Context, filters url.Values, page query.Pagination) ([]string, error) {
	tx, err := r.filtered(ctx, filters)
	if err != nil {
		return nil, err
	}
	ivorns := make([]string, 0)
	err = query.IvornList(tx, page).Pluck("voevent.ivorn", &ivorns).Error
	return ivorns, err
}

func (r *queryRepository) ListSummaries(ctx context.Context, filters url.Values, page query.Pagination) ([]models.PacketSummary, error) {
	tx, err := r.filtered(ctx, filters)
	if err != nil {
		return nil, err
	}
	rows := make([]models.PacketSummary, 0)
	err = query.SummaryList(tx, page).Find(&rows).Error
	return rows, err
}

func (r *queryRepository) ListIvornNRefs(ctx context.Context, filters url.Values, page query.Pagination) ([]models.IvornCount, error) {
	tx, err := r.filtered(ctx, filters)
	if err != nil {
		return nil, err
	}
	rows := make([]models.IvornCount, 0)
	err = query.IvornNRefs(tx, page).Find(&rows).Error
	return rows, err
}

func (r *queryRepository) ListIvornNCites(ctx context.Context, filters url.Values, page query.Pagination) ([]models.IvornCount, error) {
	tx, err := r.filtered(ctx, filters)
	if err != nil {
		return nil, err
	}
	rows := make([]models.IvornCount, 0)
	err = query.IvornNCites(tx, page).Find(&rows).Error
	return rows, err
}

func (r *queryRepository) ListMissingRefs(ctx context.Context, filters url.Values, page query.Pagination) ([]string, error) {
	tx, err := r.filtered(ctx, filters)
	if err != nil {
		return nil, err
	}
	refs := make([]string, 0)
	err = query.MissingRefs(tx, page).Pluck("cite.ref_ivorn", &refs).Error
	return refs, err
}

func (r *queryRepository) ListIvornsWithMissingRefs(ctx context.Context, filters url.Values, page query.Pagination) ([]string, error) {
	tx, err := r.filtered(ctx, filters)
	if err != nil {
		return nil, err
	}
	ivorns := make([]string, 0)
	err = query.IvornsWithMissingRefs(tx, page).Pluck("voevent.ivorn", &ivorns).Error
	return ivorns, err
}

func (r *queryRepository) keyCounts(ctx context.Context, filters url.Values, shape func(*gorm.DB) *gorm.DB) ([]query.KeyCount, error) {
	tx, err := r.filtered(ctx, filters)
	if err != nil {
		return nil, err
	}
	var rows []query.KeyCount
	err = shape(tx).Find(&rows).Error
	return rows, err
}

func (r *queryRepository) RoleCounts(ctx context.Context, filters url.Values) (map[string]int64, error) {
	rows, err := r.keyCounts(ctx, filters, query.RoleCount)
	if err != nil {
		return nil, err
	}
	return query.KeyCountMap(rows, ""), nil
}

func (r *queryRepository) StreamCounts(ctx context.Context, filters url.Values) (map[string]int64, error) {
	rows, err := r.keyCounts(ctx, filters, query.StreamCount)
	if err != nil {
		return nil, err
	}
	return query.KeyCountMap(rows, ""), nil
}

func (r *queryRepository) AuthoredMonthCounts(ctx context.Context, filters url.Values) (map[string]int64, error) {
	rows, err := r.keyCounts(ctx, filters, query.AuthoredMonthCount)
	if err != nil {
		return nil, err
	}
	return query.KeyCountMap(rows, query.NullMonthKey), nil
}

func (r *queryRepository) StreamRoleCounts(ctx context.Context, filters url.Values) (map[string]map[string]int64, error) {
	tx, err := r.filtered(ctx, filters)
	if err != nil {
		return nil, err
	}
	var rows []query.StreamRoleCount
	if err := query.StreamRoleCounts(tx).Find(&rows).Error; err != nil {
		return nil, err
	}
	return query.NestStreamRoles(rows), nil
}
