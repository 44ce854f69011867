package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"ai-interview-go/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/rs/zerolog/log"
)

// ObjectStorage 简历文件的对象存储接口
type ObjectStorage interface {
	// UploadResume 上传简历原件，返回对象键
	UploadResume(ctx context.Context, applicationID, filename, contentType string, reader io.Reader, size int64) (string, error)

	// GetResume 读取简历原件
	GetResume(ctx context.Context, objectKey string) ([]byte, error)

	// PresignResume 生成限时下载链接
	PresignResume(ctx context.Context, objectKey, filename string) (string, error)

	// DeleteResume 删除简历原件
	DeleteResume(ctx context.Context, objectKey string) error
}

// 确保MinIO实现了ObjectStorage接口
var _ ObjectStorage = (*MinIO)(nil)

// MinIO 提供对象存储功能
type MinIO struct {
	client *minio.Client
	cfg    *config.MinIOConfig
	bucket string
}

// NewMinIO 创建MinIO客户端
func NewMinIO(cfg *config.MinIOConfig) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	bucket := cfg.ResumeBucket
	if bucket == "" {
		bucket = "resumes"
	}

	m := &MinIO{client: client, cfg: cfg, bucket: bucket}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.ensureBucketExists(ctx); err != nil {
		return nil, err
	}

	if cfg.ResumeExpireDays > 0 {
		if err := m.setupLifecycle(ctx, cfg.ResumeExpireDays); err != nil {
			log.Warn().Err(err).Str("bucket", bucket).Msg("MinIO 设置生命周期规则失败")
		}
	}

	log.Info().Str("endpoint", cfg.Endpoint).Str("bucket", bucket).Msg("MinIO 客户端初始化完成")
	return m, nil
}

func (m *MinIO) ensureBucketExists(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.cfg.Location}); err != nil {
		return fmt.Errorf("创建存储桶 %s 失败: %w", m.bucket, err)
	}
	log.Info().Str("bucket", m.bucket).Msg("MinIO 存储桶已创建")
	return nil
}

func (m *MinIO) setupLifecycle(ctx context.Context, expireDays int) error {
	lc := lifecycle.NewConfiguration()
	lc.Rules = []lifecycle.Rule{
		{
			ID:     "expire-resumes",
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expireDays),
			},
		},
	}
	return m.client.SetBucketLifecycle(ctx, m.bucket, lc)
}

// ResumeObjectKey 按投递ID组织对象键，保留原始扩展名
func ResumeObjectKey(applicationID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("applications/%s/resume%s", applicationID, ext)
}

// UploadResume 上传简历原件
func (m *MinIO) UploadResume(ctx context.Context, applicationID, filename, contentType string, reader io.Reader, size int64) (string, error) {
	objectKey := ResumeObjectKey(applicationID, filename)
	if contentType == "" {
		contentType = ContentTypeFor(filename)
	}

	info, err := m.client.PutObject(ctx, m.bucket, objectKey, reader, size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"original-filename": filename},
	})
	if err != nil {
		return "", fmt.Errorf("上传简历 %s/%s 失败: %w", m.bucket, objectKey, err)
	}
	log.Debug().Str("object_key", objectKey).Int64("size", info.Size).Msg("简历已上传")
	return objectKey, nil
}

// GetResume 下载简历原件
func (m *MinIO) GetResume(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取对象 %s/%s 失败: %w", m.bucket, objectKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取对象 %s/%s 数据失败: %w", m.bucket, objectKey, err)
	}
	return data, nil
}

// PresignResume 生成带下载文件名的预签名URL
func (m *MinIO) PresignResume(ctx context.Context, objectKey, filename string) (string, error) {
	expiry := time.Duration(m.cfg.PresignExpireMinutes) * time.Minute
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	params := url.Values{}
	if filename != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}

	presigned, err := m.client.PresignedGetObject(ctx, m.bucket, objectKey, expiry, params)
	if err != nil {
		return "", fmt.Errorf("生成MinIO预签名URL失败: %w", err)
	}
	return presigned.String(), nil
}

// DeleteResume 删除简历原件
func (m *MinIO) DeleteResume(ctx context.Context, objectKey string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("删除对象 %s 失败: %w", objectKey, err)
	}
	return nil
}

// ContentTypeFor 根据文件扩展名推断内容类型
func ContentTypeFor(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
