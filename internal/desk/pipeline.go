package desk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"recruit-desk/internal/apperr"
	"recruit-desk/internal/constants"
	"recruit-desk/internal/reconciler"
	"recruit-desk/internal/scheduling"
	"recruit-desk/internal/state"
	"recruit-desk/internal/transcript"
	"recruit-desk/internal/types"
)

// Track 同步候选人的跟踪记录。响应过期时返回当前状态和 apperr.ErrStale。
func (w *Workspace) Track(ctx context.Context, applicantID string) (reconciler.View, error) {
	view, err := w.tracker.Reconcile(ctx, applicantID)
	if err == nil {
		w.store.UpdateSelection(func(sel state.Selection) state.Selection {
			if sel.ApplicantID == applicantID {
				sel.ActiveStep = view.ActiveStep
			}
			return sel
		})
	}
	return view, err
}

// TrackSearch 同步某次搜索中所有跟踪中的候选人
func (w *Workspace) TrackSearch(ctx context.Context, searchID string) (map[string]reconciler.View, map[string]error) {
	var ids []string
	for _, a := range w.store.AtsProfiles() {
		if searchID == "" || a.SearchID == searchID {
			ids = append(ids, a.ApplicantID)
		}
	}
	return w.tracker.ReconcileAll(ctx, ids)
}

// SetActiveStep 手动切换展示的步骤
func (w *Workspace) SetActiveStep(applicantID string, step types.Step) (reconciler.View, error) {
	return w.tracker.SetActiveStep(applicantID, step)
}

// Leave 离开候选人详情，丢弃进行中的同步结果
func (w *Workspace) Leave(applicantID string) {
	w.tracker.Invalidate(applicantID)
}

// applicant 从跟踪列表或当前搜索结果中找到候选人
func (w *Workspace) applicant(applicantID string) (types.Applicant, bool) {
	if view, ok := w.tracker.Current(applicantID); ok {
		return view.Applicant, true
	}
	for _, a := range w.store.AtsProfiles() {
		if a.ApplicantID == applicantID {
			return a, true
		}
	}
	for _, p := range w.store.Profiles() {
		if p.ApplicantID == applicantID {
			return types.Applicant{ApplicantID: p.ApplicantID, SearchID: p.SearchID, Profile: p.ProfileMetadata}, true
		}
	}
	return types.Applicant{}, false
}

// jobDescription 返回搜索记录中的职位描述，找不到时返回空
func (w *Workspace) jobDescription(ctx context.Context, searchID string) string {
	if searchID == "" {
		return ""
	}
	for _, h := range w.store.SearchHistory() {
		if h.SearchID == searchID {
			return h.JobDescription
		}
	}
	rec, err := w.searches.Get(ctx, w.id, searchID)
	if err != nil {
		return ""
	}
	return rec.JobDescription
}

// ScheduleInterview 为候选人安排面试
func (w *Workspace) ScheduleInterview(ctx context.Context, applicantID string, form types.MeetingForm, sc types.SearchContext) (scheduling.Result, error) {
	applicant, ok := w.applicant(applicantID)
	if !ok {
		return scheduling.Result{}, apperr.NotFound("schedule-meeting", "Applicant not found.")
	}
	if sc.SearchID == "" {
		sc.SearchID = applicant.SearchID
	}
	if sc.JobDescription == "" {
		sc.JobDescription = w.jobDescription(ctx, sc.SearchID)
	}
	res, err := w.scheduler.ScheduleMeeting(ctx, form, applicant, sc)
	if err != nil {
		return res, err
	}
	w.store.UpdateSelection(func(sel state.Selection) state.Selection {
		sel.ApplicantID = applicantID
		sel.InterviewID = res.Record.ID
		return sel
	})
	return res, nil
}

// Interviews 面试记录，applicantID 为空时返回全部
func (w *Workspace) Interviews(applicantID string) []types.InterviewRecord {
	if applicantID == "" {
		return w.store.Interviews()
	}
	return w.store.InterviewsFor(applicantID)
}

// UpdateInterview 更新面试状态或结论
func (w *Workspace) UpdateInterview(interviewID string, patch types.InterviewPatch) (types.InterviewRecord, error) {
	const op = "update-interview"
	if patch.Verdict != nil && !patch.Verdict.Valid() {
		return types.InterviewRecord{}, apperr.Validation(op, "verdict", fmt.Sprintf("Unknown verdict %q.", *patch.Verdict))
	}
	if patch.Status != nil && *patch.Status != types.InterviewStatusScheduled && *patch.Status != types.InterviewStatusCompleted {
		return types.InterviewRecord{}, apperr.Validation(op, "status", fmt.Sprintf("Unknown status %q.", *patch.Status))
	}
	if !w.store.UpdateInterview(interviewID, patch) {
		return types.InterviewRecord{}, apperr.NotFound(op, "Interview not found.")
	}
	for _, r := range w.store.Interviews() {
		if r.ID == interviewID {
			return r, nil
		}
	}
	return types.InterviewRecord{}, apperr.NotFound(op, "Interview not found.")
}

// QuestionSet 为某个候选人生成的面试题
type QuestionSet struct {
	ApplicantID    string    `json:"applicantId"`
	Questions      string    `json:"questions"`
	JobDescription string    `json:"jobDescription,omitempty"`
	GeneratedAt    time.Time `json:"generatedAt"`
}

// GenerateQuestions 生成面试题并保存到持久作用域
func (w *Workspace) GenerateQuestions(ctx context.Context, applicantID, jobDescription string) (QuestionSet, string, error) {
	const op = "generate-questions"
	applicant, ok := w.applicant(applicantID)
	if !ok {
		return QuestionSet{}, "", apperr.NotFound(op, "Applicant not found.")
	}
	if strings.TrimSpace(jobDescription) == "" {
		jobDescription = w.jobDescription(ctx, applicant.SearchID)
	}
	if strings.TrimSpace(jobDescription) == "" {
		return QuestionSet{}, "", apperr.Validation(op, "jobDescription", "Job description is required.")
	}

	questions, err := w.collab.GenerateQuestions(ctx, jobDescription, profileSummary(applicant.Profile))
	if err != nil {
		return QuestionSet{}, "", err
	}
	set := QuestionSet{
		ApplicantID:    applicantID,
		Questions:      questions,
		JobDescription: jobDescription,
		GeneratedAt:    w.now().UTC(),
	}

	w.persistMu.Lock()
	defer w.persistMu.Unlock()
	all := map[string]QuestionSet{}
	if _, err := w.scopes.Durable.Load(ctx, constants.EntryInterviewQuestions, &all); err != nil {
		w.log.Warn().Err(err).Msg("读取面试题失败")
	}
	if all == nil {
		all = map[string]QuestionSet{}
	}
	all[applicantID] = set
	if err := w.scopes.Durable.Save(ctx, constants.EntryInterviewQuestions, all); err != nil {
		w.log.Warn().Err(err).Str("applicant_id", applicantID).Msg("保存面试题失败")
		return set, "Questions were generated but could not be saved.", nil
	}
	return set, "", nil
}

// Questions 读取已保存的面试题
func (w *Workspace) Questions(ctx context.Context, applicantID string) (QuestionSet, error) {
	all := map[string]QuestionSet{}
	if _, err := w.scopes.Durable.Load(ctx, constants.EntryInterviewQuestions, &all); err != nil {
		return QuestionSet{}, fmt.Errorf("读取面试题失败: %w", err)
	}
	set, ok := all[applicantID]
	if !ok {
		return QuestionSet{}, apperr.NotFound("interview-questions", "No questions have been generated for this applicant.")
	}
	return set, nil
}

func profileSummary(p types.ProfileMetadata) string {
	parts := []string{p.Name}
	if p.Position != "" {
		parts = append(parts, p.Position)
	}
	summary := p.FullSummary
	if summary == "" {
		summary = p.ShortSummary
	}
	if summary != "" {
		parts = append(parts, summary)
	}
	return strings.Join(parts, "\n")
}

// FetchTranscript 获取面试转写。meetingID 为空时使用最近一次会议。
// 结果不会修改时间线，时间线只由跟踪同步更新。
func (w *Workspace) FetchTranscript(ctx context.Context, applicantID, meetingID string) (transcript.Outcome, error) {
	const op = "get-transcription"
	applicant, ok := w.applicant(applicantID)
	if !ok {
		return transcript.Outcome{}, apperr.NotFound(op, "Applicant not found.")
	}
	if meetingID == "" {
		if latest, ok := applicant.LatestMeeting(); ok {
			meetingID = latest.MeetingID
		}
	}
	if meetingID == "" {
		records := w.store.InterviewsFor(applicantID)
		if len(records) > 0 {
			meetingID = records[len(records)-1].ID
		}
	}
	if meetingID == "" {
		return transcript.Outcome{}, apperr.Validation(op, "meetingId", "This applicant has no meetings yet.")
	}
	return w.transcripts.Fetch(ctx, applicantID, meetingID, w.jobDescription(ctx, applicant.SearchID))
}

// IsStale 响应是否被更新的请求取代
func IsStale(err error) bool {
	return errors.Is(err, apperr.ErrStale)
}
