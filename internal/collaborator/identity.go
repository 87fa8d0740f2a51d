package collaborator

import (
	"context"
	"errors"
	"net/http"

	"recruit-desk/internal/apperr"
	"recruit-desk/internal/types"

	"github.com/tidwall/gjson"
)

// CurrentUser 返回当前登录用户。没有会话时返回 nil 而不是错误。
func (c *Client) CurrentUser(ctx context.Context, cookie string) (types.User, error) {
	const op = "auth-user"
	req := c.request(ctx)
	if cookie != "" {
		req.SetHeader("Cookie", cookie)
	}
	resp, err := c.execute(ctx, op, req, http.MethodGet, c.routes.AuthUser)
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) && (appErr.Status == http.StatusUnauthorized || appErr.Status == http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}

	parsed := gjson.ParseBytes(resp.body)
	if u := parsed.Get("user"); u.Exists() {
		parsed = u
	}
	if !parsed.IsObject() || len(parsed.Map()) == 0 {
		return nil, nil
	}
	user, ok := parsed.Value().(map[string]any)
	if !ok {
		return nil, nil
	}
	return types.User(user), nil
}

// Login 发起登录，返回需要跳转的地址
func (c *Client) Login(ctx context.Context, cookie string) (string, error) {
	const op = "auth-login"
	req := c.request(ctx)
	if cookie != "" {
		req.SetHeader("Cookie", cookie)
	}
	resp, err := c.execute(ctx, op, req, http.MethodPost, c.routes.AuthLogin)
	if err != nil {
		return "", err
	}
	return firstString(gjson.ParseBytes(resp.body), "url", "redirectUrl", "authUrl"), nil
}

// Logout 结束会话
func (c *Client) Logout(ctx context.Context, cookie string) error {
	const op = "auth-logout"
	req := c.request(ctx)
	if cookie != "" {
		req.SetHeader("Cookie", cookie)
	}
	_, err := c.execute(ctx, op, req, http.MethodPost, c.routes.AuthLogout)
	return err
}
