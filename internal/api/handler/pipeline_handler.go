package handler

import (
	"context"

	"recruit-desk/internal/apperr"
	"recruit-desk/internal/desk"
	"recruit-desk/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// ActiveStepRequest 手动切换步骤
type ActiveStepRequest struct {
	Step types.Step `json:"step"`
}

// TranscriptRequest 获取转写。meetingId 为空时取最近一次会议。
type TranscriptRequest struct {
	MeetingID string `json:"meetingId"`
}

// ScheduleRequest 排期请求：表单加上候选人和搜索上下文
type ScheduleRequest struct {
	types.MeetingForm
	ApplicantID    string `json:"applicantId"`
	SearchID       string `json:"searchId"`
	JobDescription string `json:"jobDescription"`
}

// QuestionsRequest 生成面试题
type QuestionsRequest struct {
	ProfileID      string `json:"profileId"`
	JobDescription string `json:"jobDescription"`
}

// Tracking 同步候选人的跟踪状态。过期响应不是错误，返回当前状态；
// 还没有同步过的候选人只返回 stale。
// GET /api/v1/applicants/:applicant_id/tracking
func (h *Handler) Tracking(ctx context.Context, c *app.RequestContext) {
	view, err := h.workspace(ctx, c).Track(ctx, c.Param("applicant_id"))
	if err != nil && !desk.IsStale(err) {
		h.writeError(c, err)
		return
	}
	if view.IsZero() {
		c.JSON(consts.StatusOK, utils.H{"stale": true})
		return
	}
	c.JSON(consts.StatusOK, utils.H{"view": view, "stale": desk.IsStale(err)})
}

// LeaveTracking 离开候选人详情，进行中的同步结果将被丢弃
// DELETE /api/v1/applicants/:applicant_id/tracking
func (h *Handler) LeaveTracking(ctx context.Context, c *app.RequestContext) {
	h.workspace(ctx, c).Leave(c.Param("applicant_id"))
	c.SetStatusCode(consts.StatusNoContent)
}

// SetActiveStep 手动切换展示的步骤，只在当前会话有效
// PUT /api/v1/applicants/:applicant_id/active-step
func (h *Handler) SetActiveStep(ctx context.Context, c *app.RequestContext) {
	var req ActiveStepRequest
	if err := decodeJSON(c, "active-step", &req); err != nil {
		h.writeError(c, err)
		return
	}
	view, err := h.workspace(ctx, c).SetActiveStep(c.Param("applicant_id"), req.Step)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"view": view})
}

// Transcript 获取面试转写
// POST /api/v1/applicants/:applicant_id/transcript
func (h *Handler) Transcript(ctx context.Context, c *app.RequestContext) {
	var req TranscriptRequest
	if len(c.Request.Body()) > 0 {
		if err := decodeJSON(c, "get-transcription", &req); err != nil {
			h.writeError(c, err)
			return
		}
	}
	out, err := h.workspace(ctx, c).FetchTranscript(ctx, c.Param("applicant_id"), req.MeetingID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, out)
}

// ScheduleInterview 安排面试
// POST /api/v1/interviews/schedule
func (h *Handler) ScheduleInterview(ctx context.Context, c *app.RequestContext) {
	var req ScheduleRequest
	if err := decodeJSON(c, "schedule-meeting", &req); err != nil {
		h.writeError(c, err)
		return
	}
	if req.ApplicantID == "" {
		h.writeError(c, apperr.Validation("schedule-meeting", "applicantId", "Applicant is required."))
		return
	}
	res, err := h.workspace(ctx, c).ScheduleInterview(ctx, req.ApplicantID, req.MeetingForm, types.SearchContext{
		SearchID:       req.SearchID,
		JobDescription: req.JobDescription,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusCreated, res)
}

// ListInterviews 面试记录，可按候选人过滤
// GET /api/v1/interviews
func (h *Handler) ListInterviews(ctx context.Context, c *app.RequestContext) {
	records := h.workspace(ctx, c).Interviews(c.Query("applicant_id"))
	if records == nil {
		records = []types.InterviewRecord{}
	}
	c.JSON(consts.StatusOK, utils.H{"interviews": records})
}

// UpdateInterview 更新面试结论或状态
// PATCH /api/v1/interviews/:interview_id
func (h *Handler) UpdateInterview(ctx context.Context, c *app.RequestContext) {
	var patch types.InterviewPatch
	if err := decodeJSON(c, "update-interview", &patch); err != nil {
		h.writeError(c, err)
		return
	}
	rec, err := h.workspace(ctx, c).UpdateInterview(c.Param("interview_id"), patch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"interview": rec})
}

// GenerateQuestions 生成并保存面试题
// POST /api/v1/questions
func (h *Handler) GenerateQuestions(ctx context.Context, c *app.RequestContext) {
	var req QuestionsRequest
	if err := decodeJSON(c, "generate-questions", &req); err != nil {
		h.writeError(c, err)
		return
	}
	set, warning, err := h.workspace(ctx, c).GenerateQuestions(ctx, req.ProfileID, req.JobDescription)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"questionSet": set, "warning": warning})
}

// Questions 读取已保存的面试题
// GET /api/v1/questions/:profile_id
func (h *Handler) Questions(ctx context.Context, c *app.RequestContext) {
	set, err := h.workspace(ctx, c).Questions(ctx, c.Param("profile_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"questionSet": set})
}
