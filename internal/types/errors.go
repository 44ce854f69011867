package types

import (
	"errors"
	"fmt"
	"net/http"
)

// 错误分类。所有业务错误都应能通过 errors.Is 归入其中一类
var (
	ErrValidation      = errors.New("参数校验失败")
	ErrNotFound        = errors.New("资源不存在")
	ErrConflict        = errors.New("资源冲突")
	ErrParse           = errors.New("结构化结果解析失败")
	ErrExternalService = errors.New("外部服务调用失败")
)

// LifecycleError 携带操作上下文的业务错误
type LifecycleError struct {
	Op      string // 失败的操作，例如 "registry.submit"
	Kind    error  // 上面定义的错误分类之一
	Detail  string // 面向调用方的说明
	Wrapped error  // 底层错误，可为空
}

func (e *LifecycleError) Error() string {
	msg := e.Kind.Error()
	if e.Detail != "" {
		msg = e.Detail
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *LifecycleError) Unwrap() error {
	return e.Wrapped
}

// Is 让 errors.Is 同时匹配错误分类和底层错误
func (e *LifecycleError) Is(target error) bool {
	return target == e.Kind
}

// Message 返回不带操作前缀的说明，用于 HTTP 响应体
func (e *LifecycleError) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Kind.Error()
}

func NewValidationError(op, detail string) error {
	return &LifecycleError{Op: op, Kind: ErrValidation, Detail: detail}
}

func NewNotFoundError(op, detail string) error {
	return &LifecycleError{Op: op, Kind: ErrNotFound, Detail: detail}
}

func NewConflictError(op, detail string) error {
	return &LifecycleError{Op: op, Kind: ErrConflict, Detail: detail}
}

func NewParseError(op, detail string, err error) error {
	return &LifecycleError{Op: op, Kind: ErrParse, Detail: detail, Wrapped: err}
}

func NewExternalServiceError(op, detail string, err error) error {
	return &LifecycleError{Op: op, Kind: ErrExternalService, Detail: detail, Wrapped: err}
}

// HTTPStatus 把错误分类映射为 HTTP 状态码
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		// ParseError、ExternalServiceError 以及未分类错误
		return http.StatusInternalServerError
	}
}

// PublicMessage 返回可以安全暴露给客户端的错误信息
func PublicMessage(err error) string {
	var le *LifecycleError
	if errors.As(err, &le) {
		return le.Message()
	}
	return "服务器内部错误"
}
