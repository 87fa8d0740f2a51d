// Package collaborator 封装对远端协作服务（匹配、排期、题目生成、跟踪、转写、身份）的 HTTP 调用
package collaborator

import (
	"context"
	"strings"
	"unicode/utf8"

	"recruit-desk/internal/apperr"
	"recruit-desk/internal/config"
	"recruit-desk/internal/logger"
	"recruit-desk/internal/ratelimit"
	"recruit-desk/internal/tracing"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// maxPassThroughMessage 非 JSON 错误体原样透传给用户的最大长度
const maxPassThroughMessage = 300

// Client 协作服务客户端，每个逻辑操作对应一个方法
type Client struct {
	http   *resty.Client
	routes config.RoutesConfig
	limits ratelimit.Limits
}

// New 创建客户端。所有请求共享同一个超时，超时按传输错误处理。
func New(cfg config.CollaboratorsConfig) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout()).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   rc,
		routes: cfg.Routes,
		limits: ratelimit.NewLimits(map[string]int{
			"match":              cfg.MatchQPM,
			"generate-questions": cfg.QuestionsQPM,
		}),
	}
}

// request 创建带请求 ID 的请求
func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", uuid.NewString())
}

// response 一次调用的结果
type response struct {
	status int
	body   []byte
}

// execute 发送请求并把失败归类为传输错误或协作服务错误
func (c *Client) execute(ctx context.Context, op string, req *resty.Request, method, path string, attrs ...attribute.KeyValue) (*response, error) {
	if err := c.limits.Wait(ctx, op); err != nil {
		return nil, apperr.Transport(op, err)
	}
	ctx, span := tracing.Tracer().Start(ctx, "collaborator."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("http.method", method), attribute.String("collaborator.route", path))
	span.SetAttributes(attrs...)
	req.SetContext(ctx)

	resp, err := req.Execute(method, path)
	if err != nil {
		appErr := apperr.Transport(op, err)
		tracing.RecordAppError(span, appErr)
		logger.Ctx(ctx).Warn().Err(err).Str("op", op).Msg("协作服务请求失败")
		return nil, appErr
	}

	status := resp.StatusCode()
	span.SetAttributes(attribute.Int("http.status_code", status))
	if status < 200 || status > 299 {
		body := resp.Body()
		appErr := apperr.Collaborator(op, status, errorMessage(body), tracing.TruncateString(string(body), tracing.DefaultMaxLength))
		tracing.RecordAppError(span, appErr)
		logger.Ctx(ctx).Warn().Str("op", op).Int("status", status).Msg("协作服务返回错误")
		return nil, appErr
	}
	return &response{status: status, body: resp.Body()}, nil
}

// errorMessage 从错误响应体中提取可读信息：优先 error / error.message / message 字段，
// 其次是不长的纯文本体。HTML 等无法展示的内容返回空串，由调用方使用兜底文案。
func errorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		for _, path := range []string{"error.message", "error", "message", "detail"} {
			v := parsed.Get(path)
			if v.Exists() && v.Type == gjson.String && v.String() != "" {
				return v.String()
			}
		}
		return ""
	}
	text := strings.TrimSpace(string(body))
	if text == "" || strings.HasPrefix(text, "<") || !utf8.ValidString(text) || len(text) > maxPassThroughMessage {
		return ""
	}
	return text
}

// firstString 返回第一个存在的非空字符串字段
func firstString(parsed gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := parsed.Get(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
