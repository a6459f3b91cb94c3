package repository

import (
	"context"
	"errors"

	"github.com/weibaohui/minutesagent/backend/internal/model"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type runRepository struct {
	db *gorm.DB
}

// NewRunRepository 创建运行记录仓储
func NewRunRepository(db *gorm.DB) RunRepository {
	return &runRepository{db: db}
}

func (r *runRepository) Create(ctx context.Context, run *model.Run) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *runRepository) Get(ctx context.Context, id string) (*model.Run, error) {
	var run model.Run
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

func (r *runRepository) List(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var runs []model.Run
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

func (r *runRepository) Stats(ctx context.Context) (map[string]int64, error) {
	type row struct {
		State string
		Count int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&model.Run{}).
		Select("state, COUNT(*) as count").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := make(map[string]int64, len(rows)+1)
	var total int64
	for _, s := range rows {
		stats[s.State] = s.Count
		total += s.Count
	}
	stats["total"] = total
	return stats, nil
}
