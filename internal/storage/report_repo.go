package storage

import (
	"context"
	"errors"
	"fmt"

	"ai-interview-go/internal/storage/models"
	"ai-interview-go/internal/types"

	"gorm.io/gorm"
)

// ReportFilter 报告列表的筛选条件
type ReportFilter struct {
	// ApplicationID 非空时只返回该投递的报告
	ApplicationID string
	// Practice 为 true 时只返回练习报告（无关联投递），否则只返回关联了投递的报告
	Practice bool
	// OwnerID 练习报告按所有者过滤，空值表示不过滤
	OwnerID string
}

// CreateReport 保存报告
func (m *MySQL) CreateReport(ctx context.Context, report *models.InterviewReport) error {
	if err := m.db.WithContext(ctx).Create(report).Error; err != nil {
		return fmt.Errorf("保存面试报告失败: %w", err)
	}
	return nil
}

// GetReport 按ID读取报告
func (m *MySQL) GetReport(ctx context.Context, reportID string) (*models.InterviewReport, error) {
	var report models.InterviewReport
	err := m.db.WithContext(ctx).Where("report_id = ?", reportID).First(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewNotFoundError("storage.get_report", fmt.Sprintf("报告 %s 不存在", reportID))
	}
	if err != nil {
		return nil, fmt.Errorf("查询报告 %s 失败: %w", reportID, err)
	}
	return &report, nil
}

// DeleteReport 删除报告
func (m *MySQL) DeleteReport(ctx context.Context, reportID string) error {
	result := m.db.WithContext(ctx).Where("report_id = ?", reportID).Delete(&models.InterviewReport{})
	if result.Error != nil {
		return fmt.Errorf("删除报告 %s 失败: %w", reportID, result.Error)
	}
	if result.RowsAffected == 0 {
		return types.NewNotFoundError("storage.delete_report", fmt.Sprintf("报告 %s 不存在", reportID))
	}
	return nil
}

// ListReports 分页查询报告。练习报告和关联投递的报告永远不会出现在同一个列表里
func (m *MySQL) ListReports(ctx context.Context, filter ReportFilter, page Page) ([]models.InterviewReport, int64, error) {
	page = page.Normalize()
	query := m.db.WithContext(ctx).Model(&models.InterviewReport{})

	switch {
	case filter.Practice:
		query = query.Where("application_id IS NULL")
		if filter.OwnerID != "" {
			query = query.Where("owner_id = ?", filter.OwnerID)
		}
	case filter.ApplicationID != "":
		query = query.Where("application_id = ?", filter.ApplicationID)
	default:
		query = query.Where("application_id IS NOT NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计报告数量失败: %w", err)
	}

	var reports []models.InterviewReport
	err := query.Select(models.ReportListColumns).
		Order("created_at DESC").
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&reports).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询报告列表失败: %w", err)
	}
	return reports, total, nil
}
