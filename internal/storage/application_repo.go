package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-interview-go/internal/storage/models"
	"ai-interview-go/internal/types"

	"gorm.io/gorm"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page 分页参数，Page 从 1 开始
type Page struct {
	Page     int
	PageSize int
}

// Normalize 修正非法的分页参数
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// Offset 返回查询偏移量
func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PageSize
}

// ApplicationFilter 投递列表的筛选条件，空值表示不过滤
type ApplicationFilter struct {
	JobID  string
	Status types.ApplicationStatus
}

// CreateApplication 新增投递。(job_id, candidate_email) 冲突时返回 ConflictError
func (m *MySQL) CreateApplication(ctx context.Context, app *models.Application) error {
	err := m.db.WithContext(ctx).Create(app).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return types.NewConflictError("storage.create_application",
			fmt.Sprintf("邮箱 %s 已投递过岗位 %s", app.CandidateEmail, app.JobID))
	}
	if err != nil {
		return fmt.Errorf("创建投递记录失败: %w", err)
	}
	return nil
}

// ApplicationExists 判断同一岗位同一邮箱是否已有投递
func (m *MySQL) ApplicationExists(ctx context.Context, jobID, email string) (bool, error) {
	var count int64
	err := m.db.WithContext(ctx).Model(&models.Application{}).
		Where("job_id = ? AND candidate_email = ?", jobID, email).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("查询投递记录失败: %w", err)
	}
	return count > 0, nil
}

// GetApplication 按ID读取完整投递记录
func (m *MySQL) GetApplication(ctx context.Context, applicationID string) (*models.Application, error) {
	var app models.Application
	err := m.db.WithContext(ctx).Where("application_id = ?", applicationID).First(&app).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewNotFoundError("storage.get_application", fmt.Sprintf("投递 %s 不存在", applicationID))
	}
	if err != nil {
		return nil, fmt.Errorf("查询投递 %s 失败: %w", applicationID, err)
	}
	return &app, nil
}

// UpdateApplicationStatus 无条件更新状态
func (m *MySQL) UpdateApplicationStatus(ctx context.Context, applicationID string, status types.ApplicationStatus) error {
	return m.updateApplication(ctx, "storage.update_status", applicationID, map[string]interface{}{
		"status": status,
	})
}

// StartInterview 把状态置为 Interviewing 并记录开始时间
func (m *MySQL) StartInterview(ctx context.Context, applicationID string, startedAt time.Time) error {
	return m.updateApplication(ctx, "storage.start_interview", applicationID, map[string]interface{}{
		"status":               types.StatusInterviewing,
		"interview_start_date": startedAt,
	})
}

// CompleteInterview 仅当状态仍为 Interviewing 时改为 CompletedInterview。
// 返回是否发生了状态变化，投递不存在时返回 NotFoundError
func (m *MySQL) CompleteInterview(ctx context.Context, applicationID string) (bool, error) {
	result := m.db.WithContext(ctx).Model(&models.Application{}).
		Where("application_id = ? AND status = ?", applicationID, types.StatusInterviewing).
		Updates(map[string]interface{}{
			"status":     types.StatusCompletedInterview,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("结束面试 %s 失败: %w", applicationID, result.Error)
	}
	if result.RowsAffected > 0 {
		return true, nil
	}
	if _, err := m.GetApplication(ctx, applicationID); err != nil {
		return false, err
	}
	return false, nil
}

// UpdateInterviewScore 写入面试分数
func (m *MySQL) UpdateInterviewScore(ctx context.Context, applicationID string, score float64) error {
	return m.updateApplication(ctx, "storage.update_interview_score", applicationID, map[string]interface{}{
		"interview_score": score,
	})
}

// updateApplication 值未变化时 MySQL 的 RowsAffected 为 0，所以先判断记录是否存在
func (m *MySQL) updateApplication(ctx context.Context, op, applicationID string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	result := m.db.WithContext(ctx).Model(&models.Application{}).
		Where("application_id = ?", applicationID).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("更新投递 %s 失败: %w", applicationID, result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := m.db.WithContext(ctx).Model(&models.Application{}).
		Where("application_id = ?", applicationID).Count(&count).Error; err != nil {
		return fmt.Errorf("查询投递 %s 失败: %w", applicationID, err)
	}
	if count == 0 {
		return types.NewNotFoundError(op, fmt.Sprintf("投递 %s 不存在", applicationID))
	}
	return nil
}

// ListApplications 分页查询，列表视图不读取简历正文和特征向量
func (m *MySQL) ListApplications(ctx context.Context, filter ApplicationFilter, page Page) ([]models.Application, int64, error) {
	page = page.Normalize()
	query := m.db.WithContext(ctx).Model(&models.Application{})
	if filter.JobID != "" {
		query = query.Where("job_id = ?", filter.JobID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计投递数量失败: %w", err)
	}

	var apps []models.Application
	err := query.Select(models.ApplicationListColumns).
		Order("created_at DESC").
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&apps).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询投递列表失败: %w", err)
	}
	return apps, total, nil
}

// ListApplicationsByJob 返回岗位下的全部投递（轻量列），可按状态过滤。
// 排序为 ats_score 降序、created_at 升序、application_id 升序
func (m *MySQL) ListApplicationsByJob(ctx context.Context, jobID string, statuses ...types.ApplicationStatus) ([]models.Application, error) {
	query := m.db.WithContext(ctx).Model(&models.Application{}).Where("job_id = ?", jobID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	var apps []models.Application
	err := query.Select(models.ApplicationListColumns).
		Order("ats_score DESC").
		Order("created_at ASC").
		Order("application_id ASC").
		Find(&apps).Error
	if err != nil {
		return nil, fmt.Errorf("查询岗位 %s 的投递失败: %w", jobID, err)
	}
	return apps, nil
}

// GetApplicationDescriptor 读取投递上的身份特征向量，没有时返回 nil
func (m *MySQL) GetApplicationDescriptor(ctx context.Context, applicationID string) (types.Descriptor, error) {
	var app models.Application
	err := m.db.WithContext(ctx).Select("application_id", "face_descriptor").
		Where("application_id = ?", applicationID).First(&app).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewNotFoundError("storage.get_application_descriptor", fmt.Sprintf("投递 %s 不存在", applicationID))
	}
	if err != nil {
		return nil, fmt.Errorf("查询投递 %s 的特征向量失败: %w", applicationID, err)
	}
	if len(app.FaceDescriptor) == 0 {
		return nil, nil
	}
	return types.Descriptor(app.FaceDescriptor), nil
}
