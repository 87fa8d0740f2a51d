package handler

import (
	"context"
	"errors"

	"recruit-desk/internal/apperr"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

var errIdentityDisabled = apperr.Transport("auth", errors.New("未配置身份服务"))

// CurrentUser 当前登录用户，未登录时 user 为 null
// GET /auth/user
func (h *Handler) CurrentUser(ctx context.Context, c *app.RequestContext) {
	if h.identity == nil {
		h.writeError(c, errIdentityDisabled)
		return
	}
	user, err := h.identity.CurrentUser(ctx, string(c.GetHeader("Cookie")))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"user": user})
}

// Login 发起登录
// POST /auth/login
func (h *Handler) Login(ctx context.Context, c *app.RequestContext) {
	if h.identity == nil {
		h.writeError(c, errIdentityDisabled)
		return
	}
	url, err := h.identity.Login(ctx, string(c.GetHeader("Cookie")))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"url": url})
}

// Logout 结束会话
// POST /auth/logout
func (h *Handler) Logout(ctx context.Context, c *app.RequestContext) {
	if h.identity == nil {
		h.writeError(c, errIdentityDisabled)
		return
	}
	if err := h.identity.Logout(ctx, string(c.GetHeader("Cookie"))); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"success": true})
}
