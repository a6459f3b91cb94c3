package repository

import (
	"context"
	"errors"

	"github.com/weibaohui/minutesagent/backend/internal/model"
)

// ErrNotFound 记录不存在错误
var ErrNotFound = errors.New("record not found")

// RunRepository 流水线运行记录
type RunRepository interface {
	Create(ctx context.Context, run *model.Run) error
	Get(ctx context.Context, id string) (*model.Run, error)
	// List 按创建时间倒序，limit <= 0 时使用默认值
	List(ctx context.Context, limit int) ([]model.Run, error)
	// Stats 按最终状态统计
	Stats(ctx context.Context) (map[string]int64, error)
}
