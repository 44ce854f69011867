package identity

import (
	"context"
	"fmt"
	"math"
	"strings"

	"ai-interview-go/internal/types"

	"github.com/rs/zerolog"
)

// DefaultThreshold 欧氏距离阈值，小于该值视为同一人
const DefaultThreshold = 0.6

// DescriptorStore 已登记特征向量的来源
type DescriptorStore interface {
	// GetApplicationDescriptor 投递不存在时返回 NotFoundError，未登记时返回 nil
	GetApplicationDescriptor(ctx context.Context, applicationID string) (types.Descriptor, error)
	// GetUserDescriptor 用户不存在或未登记时返回 nil, nil
	GetUserDescriptor(ctx context.Context, userID string) (types.Descriptor, error)
	SaveUserDescriptor(ctx context.Context, userID string, descriptor types.Descriptor) error
}

// Result 核验结果。NeedsRegistration 为 true 时 Match/Distance 没有意义
type Result struct {
	Match             bool    `json:"match"`
	Distance          float64 `json:"distance"`
	Threshold         float64 `json:"threshold"`
	NeedsRegistration bool    `json:"needsRegistration,omitempty"`
	Source            string  `json:"source,omitempty"` // application 或 user
}

// Gate 身份核验
type Gate struct {
	store      DescriptorStore
	threshold  float64
	dimensions int
	logger     zerolog.Logger
}

// NewGate 创建 Gate，threshold <= 0 时使用默认值
func NewGate(store DescriptorStore, threshold float64, dimensions int, logger zerolog.Logger) *Gate {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Gate{store: store, threshold: threshold, dimensions: dimensions, logger: logger}
}

// Threshold 返回当前阈值
func (g *Gate) Threshold() float64 {
	return g.threshold
}

// EuclideanDistance 计算两个等长向量的欧氏距离
func EuclideanDistance(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, types.NewValidationError("identity.distance", fmt.Sprintf("向量长度不一致: %d != %d", len(a), len(b)))
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Verify 与已登记的特征向量比对。投递级向量优先，其次是用户级向量；都没有时返回 NeedsRegistration
func (g *Gate) Verify(ctx context.Context, descriptor types.Descriptor, applicationID, userID string) (*Result, error) {
	const op = "identity.verify"
	if err := descriptor.Validate(g.dimensions); err != nil {
		return nil, err
	}
	applicationID = strings.TrimSpace(applicationID)
	userID = strings.TrimSpace(userID)

	var stored types.Descriptor
	source := ""
	if applicationID != "" {
		d, err := g.store.GetApplicationDescriptor(ctx, applicationID)
		if err != nil {
			return nil, err
		}
		if len(d) > 0 {
			stored, source = d, "application"
		}
	}
	if stored == nil && userID != "" {
		d, err := g.store.GetUserDescriptor(ctx, userID)
		if err != nil {
			return nil, err
		}
		if len(d) > 0 {
			stored, source = d, "user"
		}
	}
	if stored == nil {
		return &Result{NeedsRegistration: true, Threshold: g.threshold}, nil
	}

	distance, err := EuclideanDistance(descriptor, stored)
	if err != nil {
		// 登记的向量维度与当前配置不一致
		return nil, types.NewValidationError(op, fmt.Sprintf("已登记的特征向量维度为 %d，与提交的 %d 不一致", len(stored), len(descriptor)))
	}
	res := &Result{
		Match:     distance < g.threshold,
		Distance:  distance,
		Threshold: g.threshold,
		Source:    source,
	}
	g.logger.Info().
		Str("application_id", applicationID).
		Str("user_id", userID).
		Str("source", source).
		Float64("distance", distance).
		Bool("match", res.Match).
		Msg("身份核验完成")
	return res, nil
}

// Register 登记或覆盖用户级特征向量
func (g *Gate) Register(ctx context.Context, userID string, descriptor types.Descriptor) error {
	const op = "identity.register"
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return types.NewValidationError(op, "缺少 user_id")
	}
	if err := descriptor.Validate(g.dimensions); err != nil {
		return err
	}
	if err := g.store.SaveUserDescriptor(ctx, userID, descriptor); err != nil {
		return err
	}
	g.logger.Info().Str("user_id", userID).Int("dimensions", len(descriptor)).Msg("特征向量已登记")
	return nil
}
