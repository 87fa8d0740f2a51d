// Package handler 实现对外的 HTTP 接口
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"recruit-desk/internal/apperr"
	"recruit-desk/internal/desk"
	"recruit-desk/internal/logger"
	"recruit-desk/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"
)

// SessionHeader 选择工作区的请求头
const SessionHeader = "X-Session-ID"

// Identity 身份服务，*collaborator.Client 实现了它
type Identity interface {
	CurrentUser(ctx context.Context, cookie string) (types.User, error)
	Login(ctx context.Context, cookie string) (string, error)
	Logout(ctx context.Context, cookie string) error
}

// Handler 所有接口共用的依赖
type Handler struct {
	manager  *desk.Manager
	identity Identity
	logger   zerolog.Logger
}

// NewHandler 创建 Handler。identity 为 nil 时 /auth 接口返回 503。
func NewHandler(manager *desk.Manager, identity Identity) *Handler {
	return &Handler{
		manager:  manager,
		identity: identity,
		logger:   logger.Component("api"),
	}
}

// workspace 按请求头选择工作区
func (h *Handler) workspace(ctx context.Context, c *app.RequestContext) *desk.Workspace {
	return h.manager.Workspace(ctx, string(c.GetHeader(SessionHeader)))
}

// errorResponse 错误响应体
type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Field     string `json:"field,omitempty"`
	Retryable bool   `json:"retryable"`
}

// writeError 把业务错误映射为 HTTP 响应
func (h *Handler) writeError(c *app.RequestContext, err error) {
	status := apperr.HTTPStatus(err)
	kind := apperr.KindOf(err)
	ev := h.logger.Warn()
	if status >= consts.StatusInternalServerError {
		ev = h.logger.Error()
	}
	ev.Err(err).
		Str("path", string(c.Path())).
		Str("kind", string(kind)).
		Int("status", status).
		Msg("请求处理失败")

	c.JSON(status, errorResponse{
		Error:     apperr.UserMessage(err),
		Kind:      string(kind),
		Field:     apperr.FieldOf(err),
		Retryable: apperr.Retryable(err),
	})
}

// decodeJSON 解析请求体。空请求体视为参数错误。
func decodeJSON(c *app.RequestContext, op string, dest any) error {
	body := c.Request.Body()
	if len(body) == 0 {
		return apperr.Validation(op, "", "Request body is required.")
	}
	if err := json.Unmarshal(body, dest); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return apperr.Validation(op, typeErr.Field, "Invalid value for "+typeErr.Field+".")
		}
		return apperr.Validation(op, "", "Request body is not valid JSON.")
	}
	return nil
}

// queryInt 读取正整数查询参数
func queryInt(c *app.RequestContext, key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// Health 存活检查
// GET /api/v1/health
func (h *Handler) Health(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{"status": "ok", "workspaces": h.manager.Len()})
}

// RecentEvents 返回最近的状态变更通知
// GET /api/v1/events
func (h *Handler) RecentEvents(ctx context.Context, c *app.RequestContext) {
	ws := h.workspace(ctx, c)
	c.JSON(consts.StatusOK, utils.H{"events": ws.RecentEvents(queryInt(c, "limit", 0))})
}
