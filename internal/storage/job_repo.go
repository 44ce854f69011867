package storage

import (
	"context"
	"errors"
	"fmt"

	"ai-interview-go/internal/storage/models"
	"ai-interview-go/internal/types"

	"gorm.io/gorm"
)

// GetJob 读取岗位信息
func (m *MySQL) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	err := m.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewNotFoundError("storage.get_job", fmt.Sprintf("岗位 %s 不存在", jobID))
	}
	if err != nil {
		return nil, fmt.Errorf("查询岗位 %s 失败: %w", jobID, err)
	}
	return &job, nil
}

// IncrementJobApplications 原子地把岗位投递数加一
func (m *MySQL) IncrementJobApplications(ctx context.Context, jobID string) error {
	result := m.db.WithContext(ctx).Model(&models.Job{}).
		Where("job_id = ?", jobID).
		UpdateColumn("applications", gorm.Expr("applications + ?", 1))
	if result.Error != nil {
		return fmt.Errorf("更新岗位 %s 投递数失败: %w", jobID, result.Error)
	}
	if result.RowsAffected == 0 {
		return types.NewNotFoundError("storage.increment_job_applications", fmt.Sprintf("岗位 %s 不存在", jobID))
	}
	return nil
}
