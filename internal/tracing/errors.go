package tracing

import (
	"errors"

	"ai-interview-go/internal/types"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorType 错误分类，写入 span 的 error.type 属性便于过滤
type ErrorType string

const (
	ErrorTypeHTTP       ErrorType = "http"
	ErrorTypeDB         ErrorType = "db"
	ErrorTypeRedis      ErrorType = "redis"
	ErrorTypeRabbitMQ   ErrorType = "rabbitmq"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeParse      ErrorType = "parse"
	ErrorTypeExternal   ErrorType = "external_system"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeInternal   ErrorType = "internal"
)

// RecordError 记录错误，添加统一的错误类型和详情
func RecordError(span trace.Span, err error, errorType ErrorType, attrs ...attribute.KeyValue) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(
		attribute.String("error.type", string(errorType)),
		attribute.String("error.message", TruncateString(err.Error(), DefaultMaxLength)),
	)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	span.SetStatus(codes.Error, err.Error())
}

// ClassifyError 把业务错误映射为 ErrorType
func ClassifyError(err error) ErrorType {
	switch {
	case errors.Is(err, types.ErrValidation):
		return ErrorTypeValidation
	case errors.Is(err, types.ErrNotFound):
		return ErrorTypeNotFound
	case errors.Is(err, types.ErrConflict):
		return ErrorTypeConflict
	case errors.Is(err, types.ErrParse):
		return ErrorTypeParse
	case errors.Is(err, types.ErrExternalService):
		return ErrorTypeExternal
	default:
		return ErrorTypeInternal
	}
}

// RecordLifecycleError 按错误分类记录
func RecordLifecycleError(span trace.Span, err error) {
	RecordError(span, err, ClassifyError(err))
}

// RecordHTTPError 记录HTTP错误，按状态码区分客户端和服务端错误
func RecordHTTPError(span trace.Span, err error, statusCode int) {
	if span == nil || err == nil {
		return
	}
	category := "unknown"
	switch {
	case statusCode >= 400 && statusCode < 500:
		category = "client_error"
	case statusCode >= 500:
		category = "server_error"
	}
	RecordError(span, err, ErrorTypeHTTP,
		attribute.Int("http.status_code", statusCode),
		attribute.String("error.category", category),
	)
}
