package types

import "encoding/json"

// MeetingStatus 后端维护的面试状态
type MeetingStatus string

const (
	// MeetingStatusInvite 尚未排期
	MeetingStatusInvite MeetingStatus = "invite"
	// MeetingStatusScheduled 已排期
	MeetingStatusScheduled MeetingStatus = "scheduled"
	// MeetingStatusCompleted 面试已结束
	MeetingStatusCompleted MeetingStatus = "completed"
)

// Valid 是否为已知状态
func (s MeetingStatus) Valid() bool {
	switch s {
	case MeetingStatusInvite, MeetingStatusScheduled, MeetingStatusCompleted:
		return true
	}
	return false
}

// ProfileMetadata 搜索结果中的候选人展示信息，创建后不再变化
type ProfileMetadata struct {
	Name         string  `json:"name"`
	Position     string  `json:"position,omitempty"`
	Link         string  `json:"link"`
	ShortSummary string  `json:"shortSummary,omitempty"`
	FullSummary  string  `json:"fullSummary,omitempty"`
	Score        float64 `json:"score"` // 0..1
	Platform     string  `json:"platform,omitempty"`
}

// Profile 搜索结果中的一条候选人
type Profile struct {
	ApplicantID string `json:"applicantId"`
	SearchID    string `json:"searchId"`
	ProfileMetadata
}

// MeetingInfo 一次面试会议的信息，按时间顺序追加
type MeetingInfo struct {
	MeetingID        string   `json:"meetingId"`
	Subject          string   `json:"subject,omitempty"`
	Attendees        []string `json:"attendees,omitempty"`
	StartTime        string   `json:"startTime,omitempty"`
	DurationMinutes  int      `json:"durationMinutes,omitempty"`
	InterviewerEmail string   `json:"interviewerEmail,omitempty"`
	CandidateEmail   string   `json:"candidateEmail,omitempty"`
	MeetingLink      string   `json:"meetingLink,omitempty"`
	WebLink          string   `json:"webLink,omitempty"`
}

// AIAnalysis 面试的 AI 评估结果，分数范围 0-10
type AIAnalysis struct {
	TechnicalScore     float64 `json:"technicalScore"`
	CommunicationScore float64 `json:"communicationScore"`
	CultureFit         float64 `json:"cultureFit"`
	Recommendation     string  `json:"recommendation"`
	Summary            string  `json:"summary"`
}

// Applicant 进入跟踪流程的候选人。
// MeetingStatus / MeetingInfo / Transcription / AIAnalysis 由后端维护，本地只读。
type Applicant struct {
	ApplicantID   string          `json:"applicantId"`
	SearchID      string          `json:"searchId,omitempty"`
	Profile       ProfileMetadata `json:"profile"`
	MeetingStatus MeetingStatus   `json:"meetingStatus,omitempty"`
	MeetingInfo   []MeetingInfo   `json:"meetingInfo,omitempty"`
	Transcription *string         `json:"transcription,omitempty"`
	AIAnalysis    *AIAnalysis     `json:"aiAnalysis,omitempty"`
}

// LatestMeeting 返回最近一次会议
func (a Applicant) LatestMeeting() (MeetingInfo, bool) {
	if len(a.MeetingInfo) == 0 {
		return MeetingInfo{}, false
	}
	return a.MeetingInfo[len(a.MeetingInfo)-1], true
}

// Clone 深拷贝，避免调用方修改共享切片和指针
func (a Applicant) Clone() Applicant {
	out := a
	if a.MeetingInfo != nil {
		out.MeetingInfo = make([]MeetingInfo, len(a.MeetingInfo))
		for i, m := range a.MeetingInfo {
			out.MeetingInfo[i] = m.Clone()
		}
	}
	if a.Transcription != nil {
		t := *a.Transcription
		out.Transcription = &t
	}
	if a.AIAnalysis != nil {
		analysis := *a.AIAnalysis
		out.AIAnalysis = &analysis
	}
	return out
}

// Clone 深拷贝
func (m MeetingInfo) Clone() MeetingInfo {
	out := m
	if m.Attendees != nil {
		out.Attendees = append([]string(nil), m.Attendees...)
	}
	return out
}

// TrackingRecord applicant-tracking 接口返回的权威记录
type TrackingRecord struct {
	MeetingStatus MeetingStatus `json:"meetingStatus"`
	MeetingInfo   []MeetingInfo `json:"meetingInfo"`
	Transcription *string       `json:"transcription"`
	AIAnalysis    *AIAnalysis   `json:"aiAnalysis"`
}

// UnmarshalJSON 兼容 meetingInfo 为单个对象的旧格式
func (r *TrackingRecord) UnmarshalJSON(data []byte) error {
	type alias struct {
		MeetingStatus MeetingStatus   `json:"meetingStatus"`
		MeetingInfo   json.RawMessage `json:"meetingInfo"`
		Transcription *string         `json:"transcription"`
		AIAnalysis    *AIAnalysis     `json:"aiAnalysis"`
	}
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.MeetingStatus = raw.MeetingStatus
	r.Transcription = raw.Transcription
	r.AIAnalysis = raw.AIAnalysis
	r.MeetingInfo = nil

	if len(raw.MeetingInfo) == 0 || string(raw.MeetingInfo) == "null" {
		return nil
	}
	if raw.MeetingInfo[0] == '{' {
		var single MeetingInfo
		if err := json.Unmarshal(raw.MeetingInfo, &single); err != nil {
			return err
		}
		r.MeetingInfo = []MeetingInfo{single}
		return nil
	}
	return json.Unmarshal(raw.MeetingInfo, &r.MeetingInfo)
}

// Apply 用后端记录覆盖候选人上的权威字段，展示信息保持不变
func (r TrackingRecord) Apply(base Applicant) Applicant {
	out := base.Clone()
	fresh := Applicant{
		MeetingStatus: r.MeetingStatus,
		MeetingInfo:   r.MeetingInfo,
		Transcription: r.Transcription,
		AIAnalysis:    r.AIAnalysis,
	}.Clone()
	out.MeetingStatus = fresh.MeetingStatus
	out.MeetingInfo = fresh.MeetingInfo
	out.Transcription = fresh.Transcription
	out.AIAnalysis = fresh.AIAnalysis
	return out
}
