package tracing

import (
	"recruit-desk/internal/apperr"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorType span 上 error.type 属性的取值
type ErrorType string

const (
	ErrorTypeDB           ErrorType = "db"
	ErrorTypeRedis        ErrorType = "redis"
	ErrorTypeRabbitMQ     ErrorType = "rabbitmq"
	ErrorTypeObjectStore  ErrorType = "object_store"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeTransport    ErrorType = "transport"
	ErrorTypeCollaborator ErrorType = "collaborator"
	ErrorTypeInternal     ErrorType = "internal"
)

// 业务错误类别对应的 error.type
var kindTypes = map[apperr.Kind]ErrorType{
	apperr.KindValidation:   ErrorTypeValidation,
	apperr.KindConflict:     ErrorTypeConflict,
	apperr.KindNotFound:     ErrorTypeNotFound,
	apperr.KindTransport:    ErrorTypeTransport,
	apperr.KindCollaborator: ErrorTypeCollaborator,
}

// RecordError 标记 span 失败并写入 error.type
func RecordError(span trace.Span, err error, errorType ErrorType, extra ...attribute.KeyValue) {
	if span == nil || err == nil {
		return
	}
	msg := TruncateString(err.Error(), DefaultMaxLength)
	span.RecordError(err)
	span.SetAttributes(append([]attribute.KeyValue{
		attribute.String("error.type", string(errorType)),
		attribute.String("error.message", msg),
	}, extra...)...)
	span.SetStatus(codes.Error, msg)
}

// RecordAppError 按 apperr 类别记录。过期响应不算失败，只打 response.stale 标记。
func RecordAppError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	kind := apperr.KindOf(err)
	if kind == apperr.KindStale {
		span.SetAttributes(attribute.Bool("response.stale", true))
		return
	}

	errorType, ok := kindTypes[kind]
	if !ok {
		errorType = ErrorTypeInternal
	}
	extra := []attribute.KeyValue{attribute.Int("http.status_code", apperr.HTTPStatus(err))}
	if field := apperr.FieldOf(err); field != "" {
		extra = append(extra, attribute.String("error.field", field))
	}
	if apperr.Retryable(err) {
		extra = append(extra, attribute.Bool("error.retryable", true))
	}
	RecordError(span, err, errorType, extra...)
}

// RecordRabbitMQNack broker 返回 nack 时调用，此时没有 error 值可记录
func RecordRabbitMQNack(span trace.Span, messageID string) {
	if span == nil {
		return
	}
	const msg = "message not acknowledged by broker"
	span.SetAttributes(
		attribute.String("error.type", string(ErrorTypeRabbitMQ)),
		attribute.String("messaging.message.id", messageID),
		attribute.Bool("messaging.rabbitmq.confirmed", false),
	)
	span.SetStatus(codes.Error, msg)
}
