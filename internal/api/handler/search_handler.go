package handler

import (
	"context"

	"recruit-desk/internal/apperr"
	"recruit-desk/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// SearchRequest 搜索请求
type SearchRequest struct {
	JobDescription   string `json:"jobDescription"`
	IsJobRequisition bool   `json:"isJobRequisition"`
	Refresh          bool   `json:"refresh"` // 跳过缓存
}

// ShortlistRequest 加入跟踪列表的候选人
type ShortlistRequest struct {
	ApplicantIDs []string `json:"applicantIds"`
}

// SavedProfilesRequest 收藏列表整体替换
type SavedProfilesRequest struct {
	Profiles []types.Profile `json:"profiles"`
}

// Search 搜索候选人
// POST /api/v1/search
func (h *Handler) Search(ctx context.Context, c *app.RequestContext) {
	var req SearchRequest
	if err := decodeJSON(c, "match", &req); err != nil {
		h.writeError(c, err)
		return
	}
	out, err := h.workspace(ctx, c).Search(ctx, req.JobDescription, req.IsJobRequisition, req.Refresh)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, out)
}

// ListSearches 搜索历史
// GET /api/v1/searches
func (h *Handler) ListSearches(ctx context.Context, c *app.RequestContext) {
	history, err := h.workspace(ctx, c).SearchHistory(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if history == nil {
		history = []types.SearchRecord{}
	}
	c.JSON(consts.StatusOK, utils.H{"searches": history})
}

// DeleteSearch 删除搜索及其派生数据
// DELETE /api/v1/searches/:search_id
func (h *Handler) DeleteSearch(ctx context.Context, c *app.RequestContext) {
	res, err := h.workspace(ctx, c).DeleteSearch(ctx, c.Param("search_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, res)
}

// Shortlist 把候选人加入跟踪列表
// POST /api/v1/searches/:search_id/shortlist
func (h *Handler) Shortlist(ctx context.Context, c *app.RequestContext) {
	var req ShortlistRequest
	if err := decodeJSON(c, "shortlist", &req); err != nil {
		h.writeError(c, err)
		return
	}
	applicants, err := h.workspace(ctx, c).Shortlist(ctx, c.Param("search_id"), req.ApplicantIDs)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"applicants": applicants})
}

// TrackSearch 批量同步某次搜索下的跟踪候选人，单个失败不影响其他
// GET /api/v1/searches/:search_id/tracking
func (h *Handler) TrackSearch(ctx context.Context, c *app.RequestContext) {
	views, errs := h.workspace(ctx, c).TrackSearch(ctx, c.Param("search_id"))
	failures := make(map[string]errorResponse, len(errs))
	for id, err := range errs {
		failures[id] = errorResponse{
			Error:     apperr.UserMessage(err),
			Kind:      string(apperr.KindOf(err)),
			Retryable: apperr.Retryable(err),
		}
	}
	c.JSON(consts.StatusOK, utils.H{"views": views, "errors": failures})
}

// SavedProfiles 收藏的候选人
// GET /api/v1/profiles/saved
func (h *Handler) SavedProfiles(ctx context.Context, c *app.RequestContext) {
	profiles := h.workspace(ctx, c).SavedProfiles()
	if profiles == nil {
		profiles = []types.Profile{}
	}
	c.JSON(consts.StatusOK, utils.H{"profiles": profiles})
}

// ReplaceSavedProfiles 替换收藏列表
// PUT /api/v1/profiles/saved
func (h *Handler) ReplaceSavedProfiles(ctx context.Context, c *app.RequestContext) {
	var req SavedProfilesRequest
	if err := decodeJSON(c, "saved-profiles", &req); err != nil {
		h.writeError(c, err)
		return
	}
	ws := h.workspace(ctx, c)
	if err := ws.SetSavedProfiles(ctx, req.Profiles); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"profiles": ws.SavedProfiles()})
}
