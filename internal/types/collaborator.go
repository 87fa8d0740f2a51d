package types

// 与远端协作服务之间的报文

// MatchProfile match 接口返回的一条候选人
type MatchProfile struct {
	Title    string  `json:"title"`
	Snippet  string  `json:"snippet"`
	Link     string  `json:"link"`
	Score    float64 `json:"score"`
	Platform string  `json:"platform,omitempty"`
	Position string  `json:"position,omitempty"`
}

// MeetingRequest schedule-meeting 请求体
type MeetingRequest struct {
	OrganizerEmail  string   `json:"organizerEmail"`
	Subject         string   `json:"subject"`
	Attendees       []string `json:"attendees"`
	StartTime       string   `json:"startTime"` // 本地时间，不带偏移
	DurationMinutes int      `json:"durationMinutes"`
	ApplicantID     string   `json:"applicantId,omitempty"`
	SearchID        string   `json:"searchId,omitempty"`
}

// MeetingResponse schedule-meeting 成功响应
type MeetingResponse struct {
	ID          string `json:"id"`
	Success     bool   `json:"success"`
	MeetingLink string `json:"meetingLink,omitempty"`
	WebLink     string `json:"webLink,omitempty"`
}

// TranscriptStatus get-transcription 的三态结果
type TranscriptStatus string

const (
	TranscriptCompleted    TranscriptStatus = "completed"
	TranscriptInProgress   TranscriptStatus = "in_progress"
	TranscriptNoTranscript TranscriptStatus = "no_transcript"
)

// TranscriptResponse get-transcription 响应
type TranscriptResponse struct {
	Status     TranscriptStatus `json:"status"`
	Transcript string           `json:"transcript,omitempty"`
	Message    string           `json:"message,omitempty"`
}

// User 身份服务返回的当前用户，字段原样透传
type User map[string]any
