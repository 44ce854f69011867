package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"ai-interview-go/internal/storage"
	"ai-interview-go/internal/storage/models"
	"ai-interview-go/internal/types"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
)

// Store 投递记录的持久化接口，由 storage.MySQL 实现
type Store interface {
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	ApplicationExists(ctx context.Context, jobID, email string) (bool, error)
	CreateApplication(ctx context.Context, app *models.Application) error
	IncrementJobApplications(ctx context.Context, jobID string) error
	GetApplication(ctx context.Context, applicationID string) (*models.Application, error)
	UpdateApplicationStatus(ctx context.Context, applicationID string, status types.ApplicationStatus) error
	ListApplications(ctx context.Context, filter storage.ApplicationFilter, page storage.Page) ([]models.Application, int64, error)
}

// BlobStore 简历原件存储
type BlobStore interface {
	UploadResume(ctx context.Context, applicationID, filename, contentType string, reader io.Reader, size int64) (string, error)
	PresignResume(ctx context.Context, objectKey, filename string) (string, error)
	DeleteResume(ctx context.Context, objectKey string) error
}

// TextExtractor 简历文本提取
type TextExtractor interface {
	Extract(ctx context.Context, filename, contentType string, data []byte) (string, error)
}

// Scorer ATS 评分
type Scorer interface {
	Score(ctx context.Context, job *models.Job, resumeText string) (float64, error)
}

// Candidate 候选人信息
type Candidate struct {
	Name  string
	Email string
}

// Resume 简历原件
type Resume struct {
	Bytes       []byte
	ContentType string
	Filename    string
}

// SubmitRequest 投递请求
type SubmitRequest struct {
	JobID      string
	Candidate  Candidate
	Resume     Resume
	Descriptor types.Descriptor // 可选
}

// Registry 投递登记与查询
type Registry struct {
	store          Store
	scorer         Scorer
	blobs          BlobStore
	extractor      TextExtractor
	descriptorDims int
	maxResumeBytes int64
	now            func() time.Time
	logger         zerolog.Logger
}

// New 创建 Registry
func New(store Store, scorer Scorer, opts ...Option) *Registry {
	r := &Registry{
		store:          store,
		scorer:         scorer,
		descriptorDims: 128,
		maxResumeBytes: 10 << 20,
		now:            time.Now,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) validate(req *SubmitRequest) error {
	const op = "registry.submit"
	req.JobID = strings.TrimSpace(req.JobID)
	req.Candidate.Name = strings.TrimSpace(req.Candidate.Name)
	req.Candidate.Email = strings.ToLower(strings.TrimSpace(req.Candidate.Email))

	var missing []string
	if req.JobID == "" {
		missing = append(missing, "job_id")
	}
	if req.Candidate.Name == "" {
		missing = append(missing, "name")
	}
	if req.Candidate.Email == "" {
		missing = append(missing, "email")
	}
	if len(req.Resume.Bytes) == 0 {
		missing = append(missing, "resume")
	}
	if len(missing) > 0 {
		return types.NewValidationError(op, "缺少必填字段: "+strings.Join(missing, ", "))
	}
	if _, err := mail.ParseAddress(req.Candidate.Email); err != nil {
		return types.NewValidationError(op, "邮箱格式不正确")
	}
	if r.maxResumeBytes > 0 && int64(len(req.Resume.Bytes)) > r.maxResumeBytes {
		return types.NewValidationError(op, fmt.Sprintf("简历文件超过 %d MB", r.maxResumeBytes>>20))
	}
	if req.Descriptor != nil {
		if err := req.Descriptor.Validate(r.descriptorDims); err != nil {
			return err
		}
	}
	return nil
}

// Submit 登记一份投递。
// 同一岗位同一邮箱只能投递一次，最终由唯一索引在写入时保证；写入前的存在性检查只是为了避免无谓的评分调用
func (r *Registry) Submit(ctx context.Context, req SubmitRequest) (*models.Application, error) {
	const op = "registry.submit"
	if err := r.validate(&req); err != nil {
		return nil, err
	}

	job, err := r.store.GetJob(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	if job.ExpiresAt != nil && r.now().After(*job.ExpiresAt) {
		return nil, types.NewValidationError(op, "岗位已过期，不再接受投递")
	}

	exists, err := r.store.ApplicationExists(ctx, req.JobID, req.Candidate.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, types.NewConflictError(op, fmt.Sprintf("邮箱 %s 已投递过该岗位", req.Candidate.Email))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成投递ID失败: %w", err)
	}
	appID := id.String()
	log := r.logger.With().Str("application_id", appID).Str("job_id", req.JobID).Logger()

	resumeText := ""
	if r.extractor != nil {
		resumeText, err = r.extractor.Extract(ctx, req.Resume.Filename, req.Resume.ContentType, req.Resume.Bytes)
		if err != nil {
			// 文本提取失败不阻断投递
			log.Warn().Err(err).Msg("简历文本提取失败")
			resumeText = ""
		}
	}

	atsScore, err := r.scorer.Score(ctx, job, resumeText)
	if err != nil {
		if errors.Is(err, types.ErrExternalService) {
			return nil, err
		}
		return nil, types.NewExternalServiceError(op, "简历评分失败", err)
	}

	app := &models.Application{
		ApplicationID:     appID,
		JobID:             req.JobID,
		CandidateName:     req.Candidate.Name,
		CandidateEmail:    req.Candidate.Email,
		ResumeContentType: req.Resume.ContentType,
		ResumeFilename:    req.Resume.Filename,
		ResumeText:        resumeText,
		Status:            types.StatusPending,
		ATSScore:          atsScore,
	}
	if len(req.Descriptor) > 0 {
		app.FaceDescriptor = datatypes.JSONSlice[float64](req.Descriptor)
	}

	if r.blobs != nil {
		key, err := r.blobs.UploadResume(ctx, appID, req.Resume.Filename, req.Resume.ContentType,
			bytes.NewReader(req.Resume.Bytes), int64(len(req.Resume.Bytes)))
		if err != nil {
			return nil, types.NewExternalServiceError(op, "简历上传失败", err)
		}
		app.ResumeObjectKey = key
	}

	if err := r.store.CreateApplication(ctx, app); err != nil {
		if app.ResumeObjectKey != "" {
			if delErr := r.blobs.DeleteResume(ctx, app.ResumeObjectKey); delErr != nil {
				log.Warn().Err(delErr).Str("object_key", app.ResumeObjectKey).Msg("回滚简历原件失败")
			}
		}
		return nil, err
	}

	if err := r.store.IncrementJobApplications(ctx, req.JobID); err != nil {
		log.Error().Err(err).Msg("岗位投递计数更新失败")
	}

	log.Info().Float64("ats_score", atsScore).Msg("投递已登记")
	return app, nil
}

// UpdateStatus 无条件更新状态，只校验枚举值
func (r *Registry) UpdateStatus(ctx context.Context, applicationID string, status types.ApplicationStatus) (*models.Application, error) {
	const op = "registry.update_status"
	if strings.TrimSpace(applicationID) == "" {
		return nil, types.NewValidationError(op, "缺少 application_id")
	}
	if !status.Valid() {
		return nil, types.NewValidationError(op, fmt.Sprintf("未知的状态: %s", status))
	}
	if err := r.store.UpdateApplicationStatus(ctx, applicationID, status); err != nil {
		return nil, err
	}
	r.logger.Info().Str("application_id", applicationID).Str("status", string(status)).Msg("投递状态已更新")
	return r.store.GetApplication(ctx, applicationID)
}

// Get 读取单个投递
func (r *Registry) Get(ctx context.Context, applicationID string) (*models.Application, error) {
	if strings.TrimSpace(applicationID) == "" {
		return nil, types.NewValidationError("registry.get", "缺少 application_id")
	}
	return r.store.GetApplication(ctx, applicationID)
}

// ListResult 分页结果
type ListResult struct {
	Items    []models.Application `json:"items"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

// List 分页查询投递
func (r *Registry) List(ctx context.Context, filter storage.ApplicationFilter, page storage.Page) (*ListResult, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, types.NewValidationError("registry.list", fmt.Sprintf("未知的状态: %s", filter.Status))
	}
	page = page.Normalize()
	items, total, err := r.store.ListApplications(ctx, filter, page)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.Application{}
	}
	return &ListResult{Items: items, Total: total, Page: page.Page, PageSize: page.PageSize}, nil
}

// ResumeURL 返回简历原件的限时下载链接
func (r *Registry) ResumeURL(ctx context.Context, applicationID string) (string, error) {
	const op = "registry.resume_url"
	app, err := r.Get(ctx, applicationID)
	if err != nil {
		return "", err
	}
	if app.ResumeObjectKey == "" || r.blobs == nil {
		return "", types.NewNotFoundError(op, "该投递没有可下载的简历原件")
	}
	url, err := r.blobs.PresignResume(ctx, app.ResumeObjectKey, app.ResumeFilename)
	if err != nil {
		return "", types.NewExternalServiceError(op, "生成下载链接失败", err)
	}
	return url, nil
}
