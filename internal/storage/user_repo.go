package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-interview-go/internal/storage/models"
	"ai-interview-go/internal/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetUserDescriptor 读取用户登记的特征向量。用户不存在或未登记时返回 nil, nil
func (m *MySQL) GetUserDescriptor(ctx context.Context, userID string) (types.Descriptor, error) {
	var user models.User
	err := m.db.WithContext(ctx).Select("user_id", "face_descriptor").
		Where("user_id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询用户 %s 的特征向量失败: %w", userID, err)
	}
	if len(user.FaceDescriptor) == 0 {
		return nil, nil
	}
	return types.Descriptor(user.FaceDescriptor), nil
}

// SaveUserDescriptor 登记或覆盖用户的特征向量，用户不存在时创建
func (m *MySQL) SaveUserDescriptor(ctx context.Context, userID string, descriptor types.Descriptor) error {
	user := models.User{
		UserID:         userID,
		FaceDescriptor: datatypes.JSONSlice[float64](descriptor),
		UpdatedAt:      time.Now(),
	}
	err := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"face_descriptor", "updated_at"}),
	}).Create(&user).Error
	if err != nil {
		return fmt.Errorf("保存用户 %s 的特征向量失败: %w", userID, err)
	}
	return nil
}
