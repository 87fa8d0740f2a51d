package router

import (
	"context"
	"crypto/subtle"
	"errors"

	"recruit-desk/internal/api/handler"
	"recruit-desk/internal/config"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
)

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, hd *handler.Handler, auth config.AuthConfig) {
	api := h.Group("/api/v1")
	if mw := apiKeyMiddleware(auth); mw != nil {
		api.Use(mw)
	}

	// 健康检查
	api.GET("/health", hd.Health)

	// 搜索
	api.POST("/search", hd.Search)
	api.GET("/searches", hd.ListSearches)
	api.DELETE("/searches/:search_id", hd.DeleteSearch)
	api.POST("/searches/:search_id/shortlist", hd.Shortlist)
	api.GET("/searches/:search_id/tracking", hd.TrackSearch)

	// 候选人跟踪
	api.GET("/applicants/:applicant_id/tracking", hd.Tracking)
	api.DELETE("/applicants/:applicant_id/tracking", hd.LeaveTracking)
	api.PUT("/applicants/:applicant_id/active-step", hd.SetActiveStep)
	api.POST("/applicants/:applicant_id/transcript", hd.Transcript)

	// 面试
	api.POST("/interviews/schedule", hd.ScheduleInterview)
	api.GET("/interviews", hd.ListInterviews)
	api.PATCH("/interviews/:interview_id", hd.UpdateInterview)

	// 面试题
	api.POST("/questions", hd.GenerateQuestions)
	api.GET("/questions/:profile_id", hd.Questions)

	// 收藏
	api.GET("/profiles/saved", hd.SavedProfiles)
	api.PUT("/profiles/saved", hd.ReplaceSavedProfiles)

	api.GET("/events", hd.RecentEvents)

	// 身份代理，依赖协作服务自己的会话 Cookie
	authGroup := h.Group("/auth")
	authGroup.GET("/user", hd.CurrentUser)
	authGroup.POST("/login", hd.Login)
	authGroup.POST("/logout", hd.Logout)
}

var errInvalidAPIKey = errors.New("invalid api key")

// apiKeyMiddleware 未配置 API Key 时返回 nil。健康检查不校验。
func apiKeyMiddleware(auth config.AuthConfig) app.HandlerFunc {
	if auth.APIKey == "" {
		return nil
	}
	header := auth.KeyHeader
	if header == "" {
		header = "X-API-Key"
	}
	expected := []byte(auth.APIKey)

	return keyauth.New(
		keyauth.WithKeyLookUp("header:"+header, ""),
		keyauth.WithFilter(func(c context.Context, ctx *app.RequestContext) bool {
			return string(ctx.Path()) == "/api/v1/health"
		}),
		keyauth.WithValidator(func(c context.Context, ctx *app.RequestContext, key string) (bool, error) {
			if subtle.ConstantTimeCompare([]byte(key), expected) == 1 {
				return true, nil
			}
			return false, errInvalidAPIKey
		}),
		keyauth.WithErrorHandler(func(c context.Context, ctx *app.RequestContext, err error) {
			ctx.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{
				"error":     "Unauthorized.",
				"kind":      "unauthorized",
				"retryable": false,
			})
		}),
	)
}
