package reconciler

import "recruit-desk/internal/types"

// DeriveTimeline 由候选人的后端字段计算时间线。
// 每个步骤单独判断：多轮面试时，上一轮已有分析而下一轮仍在排期中，
// analysis 完成而 awaiting 未完成。Stage 只是汇总字段。
func DeriveTimeline(a types.Applicant) types.Timeline {
	status := a.MeetingStatus
	return withMeetingDetails(types.Timeline{
		Stage: types.StageOf(status, a.AIAnalysis),
		Invite: types.InviteStep{
			Completed: status == types.MeetingStatusScheduled || status == types.MeetingStatusCompleted,
			Rounds:    len(a.MeetingInfo),
		},
		Awaiting: types.AwaitingStep{
			Completed:     status == types.MeetingStatusCompleted,
			HasTranscript: a.Transcription != nil && *a.Transcription != "",
		},
		Analysis: types.AnalysisStep{
			Completed: a.AIAnalysis != nil,
		},
	}, a)
}

// withMeetingDetails 邀请步骤展示最近一次会议，分析步骤带上分析结果
func withMeetingDetails(tl types.Timeline, a types.Applicant) types.Timeline {
	if latest, ok := a.LatestMeeting(); ok {
		latest = latest.Clone()
		tl.Invite.MeetingID = latest.MeetingID
		tl.Invite.Subject = latest.Subject
		tl.Invite.Attendees = latest.Attendees
		tl.Invite.StartTime = latest.StartTime
		tl.Invite.DurationMinutes = latest.DurationMinutes
		tl.Invite.InterviewerEmail = latest.InterviewerEmail
		tl.Invite.CandidateEmail = latest.CandidateEmail
		tl.Invite.MeetingLink = latest.MeetingLink
		tl.Invite.WebLink = latest.WebLink
	}
	if a.AIAnalysis != nil {
		analysis := *a.AIAnalysis
		tl.Analysis.Analysis = &analysis
	}
	return tl
}

// DefaultActiveStep 没有手动选择时展示的步骤
func DefaultActiveStep(a types.Applicant) types.Step {
	switch {
	case a.AIAnalysis != nil:
		return types.StepAnalysis
	case a.MeetingStatus == types.MeetingStatusScheduled:
		return types.StepAwaiting
	default:
		return types.StepInvite
	}
}

// DeriveInterviews 由 meetingInfo 重建候选人的面试轮次。
// 除最后一轮外都视为已完成，最后一轮只有 meetingStatus 为 completed 时才完成；
// verdict 从 existing 中同 id 的记录继承。
func DeriveInterviews(a types.Applicant, existing []types.InterviewRecord) []types.InterviewRecord {
	verdicts := make(map[string]types.Verdict, len(existing))
	for _, r := range existing {
		if r.ApplicantID == a.ApplicantID {
			verdicts[r.ID] = r.Verdict
		}
	}

	out := make([]types.InterviewRecord, 0, len(a.MeetingInfo))
	last := len(a.MeetingInfo) - 1
	for i, m := range a.MeetingInfo {
		status := types.InterviewStatusCompleted
		if i == last && a.MeetingStatus != types.MeetingStatusCompleted {
			status = types.InterviewStatusScheduled
		}
		verdict, ok := verdicts[m.MeetingID]
		if !ok || !verdict.Valid() {
			verdict = types.VerdictPending
		}
		m = m.Clone()
		out = append(out, types.InterviewRecord{
			ID:               m.MeetingID,
			ApplicantID:      a.ApplicantID,
			SearchID:         a.SearchID,
			RoundNumber:      i + 1,
			Status:           status,
			Verdict:          verdict,
			Subject:          m.Subject,
			Attendees:        m.Attendees,
			StartTime:        m.StartTime,
			DurationMinutes:  m.DurationMinutes,
			InterviewerEmail: m.InterviewerEmail,
			CandidateEmail:   m.CandidateEmail,
			MeetingLink:      m.MeetingLink,
			WebLink:          m.WebLink,
		})
	}
	return out
}
