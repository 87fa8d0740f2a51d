package collaborator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"recruit-desk/internal/apperr"
	"recruit-desk/internal/tracing"
	"recruit-desk/internal/types"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
)

// Match 按职位描述匹配候选人，返回 topProfiles
func (c *Client) Match(ctx context.Context, jobDescription string) ([]types.MatchProfile, error) {
	const op = "match"
	req := c.request(ctx).SetBody(map[string]string{"jobDescription": jobDescription})
	resp, err := c.execute(ctx, op, req, http.MethodPost, c.routes.Match,
		tracing.String("search.query", jobDescription, tracing.MaxQueryLength))
	if err != nil {
		return nil, err
	}

	raw := gjson.GetBytes(resp.body, "topProfiles")
	if !raw.Exists() || raw.Type == gjson.Null {
		return []types.MatchProfile{}, nil
	}
	var profiles []types.MatchProfile
	if err := json.Unmarshal([]byte(raw.Raw), &profiles); err != nil {
		return nil, apperr.Collaborator(op, resp.status, "", fmt.Sprintf("解析topProfiles失败: %v", err))
	}
	return profiles, nil
}

// ScheduleMeeting 创建会议。400 的 error/message 原样返回给用户，不重试。
func (c *Client) ScheduleMeeting(ctx context.Context, meeting types.MeetingRequest) (*types.MeetingResponse, error) {
	const op = "schedule-meeting"
	req := c.request(ctx).SetBody(meeting)
	resp, err := c.execute(ctx, op, req, http.MethodPost, c.routes.ScheduleMeeting,
		tracing.String("meeting.organizer", meeting.OrganizerEmail, tracing.DefaultMaxLength),
		tracing.Emails("meeting.attendees", meeting.Attendees),
		attribute.String("applicant.id", meeting.ApplicantID))
	if err != nil {
		return nil, err
	}

	parsed := gjson.ParseBytes(resp.body)
	out := &types.MeetingResponse{
		ID:          firstString(parsed, "id", "meetingId"),
		Success:     parsed.Get("success").Bool(),
		MeetingLink: firstString(parsed, "meetingLink", "onlineMeeting.joinUrl", "joinUrl"),
		WebLink:     firstString(parsed, "webLink"),
	}
	// 没有 success 字段但带了 id，也视为成功
	if !parsed.Get("success").Exists() && out.ID != "" {
		out.Success = true
	}
	if !out.Success {
		return nil, apperr.Collaborator(op, resp.status, errorMessage(resp.body), tracing.TruncateString(string(resp.body), tracing.DefaultMaxLength))
	}
	return out, nil
}

// GenerateQuestions 生成面试题。questions 字段可能是字符串，也可能是结构化数组。
func (c *Client) GenerateQuestions(ctx context.Context, jobDescription, profileSummary string) (string, error) {
	const op = "generate-questions"
	body := map[string]string{"jobDescription": jobDescription}
	if profileSummary != "" {
		body["profileSummary"] = profileSummary
	}
	req := c.request(ctx).SetBody(body)
	resp, err := c.execute(ctx, op, req, http.MethodPost, c.routes.GenerateQuestions)
	if err != nil {
		return "", err
	}

	questions := flattenQuestions(gjson.GetBytes(resp.body, "questions"))
	if questions == "" {
		return "", apperr.Collaborator(op, resp.status, "No questions were generated.", "")
	}
	return questions, nil
}

// flattenQuestions 统一为多行文本
func flattenQuestions(v gjson.Result) string {
	switch {
	case !v.Exists() || v.Type == gjson.Null:
		return ""
	case v.Type == gjson.String:
		return strings.TrimSpace(v.String())
	case v.IsArray():
		lines := make([]string, 0, len(v.Array()))
		for _, item := range v.Array() {
			text := item.String()
			if item.IsObject() {
				text = firstString(item, "question", "text")
			}
			if text = strings.TrimSpace(text); text != "" {
				lines = append(lines, text)
			}
		}
		return strings.Join(lines, "\n")
	default:
		return v.Raw
	}
}

// ApplicantTracking 读取候选人的权威跟踪记录。非 200 一律视为失败。
func (c *Client) ApplicantTracking(ctx context.Context, applicantID string) (*types.TrackingRecord, error) {
	const op = "applicant-tracking"
	req := c.request(ctx).SetPathParam("applicantId", applicantID)
	resp, err := c.execute(ctx, op, req, http.MethodGet, c.routes.ApplicantTracking,
		attribute.String("applicant.id", applicantID))
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, apperr.Collaborator(op, resp.status, "", "非200响应")
	}

	var record types.TrackingRecord
	if err := json.Unmarshal(resp.body, &record); err != nil {
		return nil, apperr.Collaborator(op, resp.status, "", fmt.Sprintf("解析跟踪记录失败: %v", err))
	}
	if record.MeetingStatus == "" {
		record.MeetingStatus = types.MeetingStatusInvite
	}
	if !record.MeetingStatus.Valid() {
		return nil, apperr.Collaborator(op, resp.status, "", fmt.Sprintf("未知的meetingStatus: %q", record.MeetingStatus))
	}
	return &record, nil
}

// FetchTranscript 获取会议转写，返回三态结果
func (c *Client) FetchTranscript(ctx context.Context, applicantID, meetingID, jobDescription string) (*types.TranscriptResponse, error) {
	const op = "get-transcription"
	req := c.request(ctx).
		SetQueryParam("applicant_id", applicantID).
		SetBody(map[string]string{
			"id":             meetingID,
			"jobDescription": jobDescription,
		})
	resp, err := c.execute(ctx, op, req, http.MethodPost, c.routes.Transcription,
		attribute.String("applicant.id", applicantID), attribute.String("meeting.id", meetingID))
	if err != nil {
		return nil, err
	}

	var out types.TranscriptResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, apperr.Collaborator(op, resp.status, "", fmt.Sprintf("解析转写响应失败: %v", err))
	}
	switch out.Status {
	case types.TranscriptCompleted, types.TranscriptInProgress, types.TranscriptNoTranscript:
		return &out, nil
	}
	return nil, apperr.Collaborator(op, resp.status, "", fmt.Sprintf("未知的转写状态: %q", out.Status))
}
