// Package scheduling 校验排期表单、调用会议服务，并在成功后登记面试记录
package scheduling

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"recruit-desk/internal/apperr"
	"recruit-desk/internal/constants"
	"recruit-desk/internal/logger"
	"recruit-desk/internal/outbox"
	"recruit-desk/internal/state"
	"recruit-desk/internal/storage"
	"recruit-desk/internal/types"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	opSchedule = "schedule-meeting"

	dateLayout = "2006-01-02"
	timeLayout = "15:04"
	// 会议服务要求不带偏移的本地时间
	wireLayout = "2006-01-02T15:04:05"
)

// MeetingClient 会议服务，*collaborator.Client 实现了它
type MeetingClient interface {
	ScheduleMeeting(ctx context.Context, meeting types.MeetingRequest) (*types.MeetingResponse, error)
}

// Result 排期结果。Warning 非空表示会议已创建但本地后续处理有问题。
type Result struct {
	Record   types.InterviewRecord  `json:"interview"`
	Response *types.MeetingResponse `json:"meeting"`
	Warning  string                 `json:"warning,omitempty"`
}

// Config 排期参数
type Config struct {
	Location        *time.Location
	DurationMinutes int
	SubjectMaxRunes int
	WorkspaceID     string
}

// Workflow 一个工作区的排期流程
type Workflow struct {
	client   MeetingClient
	store    *state.Store
	events   outbox.Writer
	cfg      Config
	now      func() time.Time
	validate *validator.Validate

	mu       sync.Mutex
	inflight map[string]bool // 正在排期的候选人
}

// New 创建排期流程，events 可以为 nil
func New(client MeetingClient, store *state.Store, events outbox.Writer, cfg Config) *Workflow {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DurationMinutes <= 0 {
		cfg.DurationMinutes = 60
	}
	if cfg.SubjectMaxRunes <= 0 {
		cfg.SubjectMaxRunes = 60
	}
	v := validator.New()
	// 错误里使用 json 字段名，与前端表单一致
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &Workflow{
		client:   client,
		store:    store,
		events:   events,
		cfg:      cfg,
		now:      time.Now,
		validate: v,
		inflight: make(map[string]bool),
	}
}

// WithClock 注入时钟，返回自身方便链式调用
func (w *Workflow) WithClock(now func() time.Time) *Workflow {
	w.now = now
	return w
}

// ScheduleMeeting 校验表单并创建会议。
// 校验失败或已有未完成的面试时不会发出网络请求；会议服务的错误原样返回，不重试。
func (w *Workflow) ScheduleMeeting(ctx context.Context, form types.MeetingForm, applicant types.Applicant, sc types.SearchContext) (Result, error) {
	form = normalizeForm(form)
	start, err := w.preflight(form)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(applicant.ApplicantID) == "" {
		return Result{}, apperr.Validation(opSchedule, "applicantId", "Applicant ID is required.")
	}

	release, err := w.acquire(applicant.ApplicantID)
	if err != nil {
		return Result{}, err
	}
	defer release()

	searchID := sc.SearchID
	if searchID == "" {
		searchID = applicant.SearchID
	}
	req := types.MeetingRequest{
		OrganizerEmail:  form.InterviewerEmail,
		Subject:         w.subject(sc.JobDescription, applicant.Profile.Name),
		Attendees:       []string{form.InterviewerEmail, form.CandidateEmail},
		StartTime:       start.Format(wireLayout),
		DurationMinutes: w.cfg.DurationMinutes,
		ApplicantID:     applicant.ApplicantID,
		SearchID:        searchID,
	}

	log := logger.Ctx(ctx).With().Str("applicant_id", applicant.ApplicantID).Logger()
	resp, err := w.client.ScheduleMeeting(ctx, req)
	if err != nil {
		log.Warn().Err(err).Msg("创建会议失败")
		return Result{}, err
	}

	result := Result{Response: resp}
	meetingID := resp.ID
	if meetingID == "" {
		meetingID = "local-" + uuid.NewString()
		result.Warning = "Meeting was created but no meeting id was returned."
		log.Warn().Str("interview_id", meetingID).Msg("会议服务未返回id，使用本地id")
	}

	round := 1 + len(w.store.InterviewsFor(applicant.ApplicantID))
	record := types.InterviewRecord{
		ID:               meetingID,
		ApplicantID:      applicant.ApplicantID,
		SearchID:         searchID,
		RoundNumber:      round,
		Status:           types.InterviewStatusScheduled,
		Verdict:          types.VerdictPending,
		Subject:          req.Subject,
		Attendees:        append([]string(nil), req.Attendees...),
		StartTime:        start.Format(time.RFC3339),
		DurationMinutes:  req.DurationMinutes,
		InterviewerEmail: form.InterviewerEmail,
		CandidateEmail:   form.CandidateEmail,
		MeetingLink:      resp.MeetingLink,
		WebLink:          resp.WebLink,
	}
	w.store.AddInterview(record)
	result.Record = record

	if w.events != nil {
		err := w.events.Enqueue(ctx, outbox.Event{
			AggregateID: applicant.ApplicantID,
			WorkspaceID: w.cfg.WorkspaceID,
			Type:        constants.EventInterviewScheduled,
			Data: storage.InterviewScheduledData{
				InterviewID: meetingID,
				ApplicantID: applicant.ApplicantID,
				SearchID:    searchID,
				RoundNumber: round,
				StartTime:   record.StartTime,
			},
		})
		if err != nil {
			log.Warn().Err(err).Msg("写入排期事件失败")
			result.Warning = joinWarning(result.Warning, "Interview was scheduled but the notification could not be queued.")
		}
	}

	log.Info().Str("interview_id", meetingID).Int("round", round).Msg("面试已排期")
	return result, nil
}

// normalizeForm 去掉首尾空白，校验、请求和本地记录都使用处理后的表单
func normalizeForm(form types.MeetingForm) types.MeetingForm {
	form.CandidateEmail = strings.TrimSpace(form.CandidateEmail)
	form.InterviewerEmail = strings.TrimSpace(form.InterviewerEmail)
	form.Date = strings.TrimSpace(form.Date)
	form.Time = strings.TrimSpace(form.Time)
	return form
}

// preflight 校验已规范化的表单并返回会议开始时间
func (w *Workflow) preflight(form types.MeetingForm) (time.Time, error) {
	if err := w.validate.Struct(form); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return time.Time{}, apperr.Validation(opSchedule, fe.Field(), fieldMessage(fe))
		}
		return time.Time{}, apperr.Validation(opSchedule, "", err.Error())
	}

	day, err := time.ParseInLocation(dateLayout, form.Date, w.cfg.Location)
	if err != nil {
		return time.Time{}, apperr.Validation(opSchedule, "date", "Date must be in YYYY-MM-DD format.")
	}
	clock, err := time.Parse(timeLayout, form.Time)
	if err != nil {
		return time.Time{}, apperr.Validation(opSchedule, "time", "Time must be in HH:MM format.")
	}

	now := w.now().In(w.cfg.Location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, w.cfg.Location)
	if day.Before(today) {
		return time.Time{}, apperr.Validation(opSchedule, "date", "Date cannot be in the past.")
	}
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, w.cfg.Location), nil
}

// acquire 检查重复排期并占用候选人
func (w *Workflow) acquire(applicantID string) (func(), error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.inflight[applicantID] {
		return nil, apperr.Conflict(opSchedule, "A meeting is already being scheduled for this applicant.")
	}
	for _, r := range w.store.InterviewsFor(applicantID) {
		if r.Status == types.InterviewStatusScheduled {
			return nil, apperr.Conflict(opSchedule, "This applicant already has a scheduled interview.")
		}
	}
	w.inflight[applicantID] = true
	return func() {
		w.mu.Lock()
		delete(w.inflight, applicantID)
		w.mu.Unlock()
	}, nil
}

// subject 优先使用职位描述的第一行，否则使用候选人姓名
func (w *Workflow) subject(jobDescription, name string) string {
	if line := firstLine(jobDescription); line != "" {
		return "Interview: " + truncateRunes(line, w.cfg.SubjectMaxRunes)
	}
	if name = strings.TrimSpace(name); name != "" {
		return "Interview with " + truncateRunes(name, w.cfg.SubjectMaxRunes)
	}
	return "Interview"
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			return line
		}
	}
	return ""
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max])) + "..."
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required.", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address.", fe.Field())
	}
	return fmt.Sprintf("%s is invalid.", fe.Field())
}

func joinWarning(a, b string) string {
	if a == "" {
		return b
	}
	return a + " " + b
}
