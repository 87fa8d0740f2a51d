// Package apperr 定义业务层共享的错误分类
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// 定义基础错误类型
var (
	ErrValidation   = errors.New("参数校验失败")
	ErrConflict     = errors.New("操作冲突")
	ErrCollaborator = errors.New("协作服务返回错误")
	ErrTransport    = errors.New("协作服务不可达")
	ErrNotFound     = errors.New("资源不存在")
	// ErrStale 响应已被更新的请求取代，调用方应静默丢弃
	ErrStale = errors.New("响应已过期")
)

// 协作服务未返回可读信息时展示给用户的兜底文案
const genericCollaboratorMessage = "Request failed. Please try again."

// Kind 错误类别
type Kind string

const (
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindCollaborator Kind = "collaborator"
	KindTransport    Kind = "transport"
	KindNotFound     Kind = "not_found"
	KindStale        Kind = "stale"
	KindInternal     Kind = "internal"
)

var kindByBase = map[error]Kind{
	ErrValidation:   KindValidation,
	ErrConflict:     KindConflict,
	ErrCollaborator: KindCollaborator,
	ErrTransport:    KindTransport,
	ErrNotFound:     KindNotFound,
	ErrStale:        KindStale,
}

// Error 包含详细错误信息的自定义错误
type Error struct {
	Op      string // 出错的操作，例如 "schedule-meeting"
	BaseErr error  // 上面的基础错误之一
	Field   string // 校验错误对应的字段
	Status  int    // 协作服务返回的 HTTP 状态码
	Message string // 可以直接展示给用户的信息
	Detail  string // 原始响应体等排查信息，不展示给用户
	Cause   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s (操作:%s)", e.BaseErr, e.Op)
	if e.Field != "" {
		msg += fmt.Sprintf(" 字段:%s", e.Field)
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" 状态码:%d", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *Error) Is(target error) bool {
	if errors.Is(e.BaseErr, target) {
		return true
	}
	return e.Cause != nil && errors.Is(e.Cause, target)
}

// Validation 表单预检失败，不会发出任何网络请求
func Validation(op, field, message string) error {
	return &Error{Op: op, BaseErr: ErrValidation, Field: field, Message: message}
}

// Conflict 例如重复排期
func Conflict(op, message string) error {
	return &Error{Op: op, BaseErr: ErrConflict, Message: message}
}

// Collaborator 协作服务返回了非 2xx。message 为空时使用兜底文案。
func Collaborator(op string, status int, message, detail string) error {
	return &Error{Op: op, BaseErr: ErrCollaborator, Status: status, Message: message, Detail: detail}
}

// Transport 网络失败或超时，可重试
func Transport(op string, cause error) error {
	return &Error{Op: op, BaseErr: ErrTransport, Message: "Service unreachable. Please retry.", Cause: cause}
}

// NotFound 资源不存在
func NotFound(op, message string) error {
	return &Error{Op: op, BaseErr: ErrNotFound, Message: message}
}

// Stale 过期响应
func Stale(op string) error {
	return &Error{Op: op, BaseErr: ErrStale}
}

// KindOf 返回错误类别，非本包错误归为 internal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if k, ok := kindByBase[e.BaseErr]; ok {
			return k
		}
	}
	for base, k := range kindByBase {
		if errors.Is(err, base) {
			return k
		}
	}
	return KindInternal
}

// Retryable 只有传输层错误值得用户重试
func Retryable(err error) bool {
	return KindOf(err) == KindTransport
}

// FieldOf 返回校验失败的字段
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}

// UserMessage 返回可展示给用户的信息
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	switch KindOf(err) {
	case KindCollaborator:
		return genericCollaboratorMessage
	case KindNotFound:
		return "Not found."
	}
	return "Internal error."
}

// HTTPStatus 把错误映射为对外的 HTTP 状态码
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindTransport:
		return http.StatusServiceUnavailable
	case KindCollaborator:
		var e *Error
		if errors.As(err, &e) && e.Status >= 400 && e.Status < 600 {
			return e.Status
		}
		return http.StatusBadGateway
	case KindStale:
		return http.StatusOK
	}
	return http.StatusInternalServerError
}
