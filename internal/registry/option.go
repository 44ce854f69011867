package registry

import (
	"time"

	"github.com/rs/zerolog"
)

// Option Registry 的配置选项
type Option func(*Registry)

// WithBlobStore 设置简历原件存储，不设置时不保存原件
func WithBlobStore(blobs BlobStore) Option {
	return func(r *Registry) {
		r.blobs = blobs
	}
}

// WithTextExtractor 设置简历文本提取器
func WithTextExtractor(extractor TextExtractor) Option {
	return func(r *Registry) {
		r.extractor = extractor
	}
}

// WithDescriptorDimensions 设置特征向量维度
func WithDescriptorDimensions(dims int) Option {
	return func(r *Registry) {
		if dims > 0 {
			r.descriptorDims = dims
		}
	}
}

// WithMaxResumeBytes 设置简历大小上限
func WithMaxResumeBytes(n int64) Option {
	return func(r *Registry) {
		r.maxResumeBytes = n
	}
}

// WithClock 替换时间源，测试用
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithLogger 设置日志
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}
