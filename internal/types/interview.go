package types

// InterviewStatus 本地面试记录状态
type InterviewStatus string

const (
	InterviewStatusScheduled InterviewStatus = "scheduled"
	InterviewStatusCompleted InterviewStatus = "completed"
)

// Verdict 面试结论
type Verdict string

const (
	VerdictPending  Verdict = "pending"
	VerdictSelected Verdict = "selected"
	VerdictRejected Verdict = "rejected"
)

// Valid 是否为已知结论
func (v Verdict) Valid() bool {
	switch v {
	case VerdictPending, VerdictSelected, VerdictRejected:
		return true
	}
	return false
}

// InterviewRecord 本地维护的面试轮次记录，ID 等于远端 meetingId
type InterviewRecord struct {
	ID               string          `json:"id"`
	ApplicantID      string          `json:"applicantId"`
	SearchID         string          `json:"searchId,omitempty"`
	RoundNumber      int             `json:"roundNumber"`
	Status           InterviewStatus `json:"status"`
	Verdict          Verdict         `json:"verdict"`
	Subject          string          `json:"subject,omitempty"`
	Attendees        []string        `json:"attendees,omitempty"`
	StartTime        string          `json:"startTime,omitempty"`
	DurationMinutes  int             `json:"durationMinutes,omitempty"`
	InterviewerEmail string          `json:"interviewerEmail,omitempty"`
	CandidateEmail   string          `json:"candidateEmail,omitempty"`
	MeetingLink      string          `json:"meetingLink,omitempty"`
	WebLink          string          `json:"webLink,omitempty"`
}

// Clone 深拷贝
func (r InterviewRecord) Clone() InterviewRecord {
	out := r
	if r.Attendees != nil {
		out.Attendees = append([]string(nil), r.Attendees...)
	}
	return out
}

// InterviewPatch 对单条面试记录的局部更新，nil 字段保持不变
type InterviewPatch struct {
	Status      *InterviewStatus `json:"status,omitempty"`
	Verdict     *Verdict         `json:"verdict,omitempty"`
	StartTime   *string          `json:"startTime,omitempty"`
	MeetingLink *string          `json:"meetingLink,omitempty"`
	WebLink     *string          `json:"webLink,omitempty"`
}

// ApplyTo 把补丁合并到记录上
func (p InterviewPatch) ApplyTo(r InterviewRecord) InterviewRecord {
	out := r.Clone()
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.Verdict != nil {
		out.Verdict = *p.Verdict
	}
	if p.StartTime != nil {
		out.StartTime = *p.StartTime
	}
	if p.MeetingLink != nil {
		out.MeetingLink = *p.MeetingLink
	}
	if p.WebLink != nil {
		out.WebLink = *p.WebLink
	}
	return out
}

// MeetingForm 排期表单
type MeetingForm struct {
	CandidateEmail   string `json:"candidateEmail" validate:"required,email"`
	InterviewerEmail string `json:"interviewerEmail" validate:"required,email"`
	Date             string `json:"date" validate:"required"` // YYYY-MM-DD
	Time             string `json:"time" validate:"required"` // HH:MM
}

// SearchContext 排期时附带的搜索上下文
type SearchContext struct {
	SearchID       string `json:"searchId,omitempty"`
	JobDescription string `json:"jobDescription,omitempty"`
}
