package types

import (
	"encoding/json"
	"fmt"
)

// Stage 候选人在面试流程中的阶段，按先后有序
type Stage int

const (
	StageInvited Stage = iota
	StageScheduled
	StageCompleted
	StageAnalyzed
)

var stageNames = [...]string{"invited", "scheduled", "completed", "analyzed"}

func (s Stage) String() string {
	if s < StageInvited || s > StageAnalyzed {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// MarshalJSON 以名称输出
func (s Stage) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON 按名称解析
func (s *Stage) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for i, n := range stageNames {
		if n == name {
			*s = Stage(i)
			return nil
		}
	}
	return fmt.Errorf("未知的阶段: %q", name)
}

// StageOf 由后端记录推导阶段：有 AI 分析即为 Analyzed，否则看 meetingStatus。
// 未知状态视为 Invited。
func StageOf(status MeetingStatus, analysis *AIAnalysis) Stage {
	if analysis != nil {
		return StageAnalyzed
	}
	switch status {
	case MeetingStatusCompleted:
		return StageCompleted
	case MeetingStatusScheduled:
		return StageScheduled
	default:
		return StageInvited
	}
}

// Step 时间线上的步骤，也是 activeStep 的取值
type Step string

const (
	StepInvite   Step = "invite"
	StepAwaiting Step = "awaiting"
	StepAnalysis Step = "analysis"
)

// Valid 是否为已知步骤
func (s Step) Valid() bool {
	switch s {
	case StepInvite, StepAwaiting, StepAnalysis:
		return true
	}
	return false
}

// InviteStep 邀请步骤，展示最近一次会议的信息
type InviteStep struct {
	Completed        bool     `json:"completed"`
	Rounds           int      `json:"rounds"`
	MeetingID        string   `json:"meetingId,omitempty"`
	Subject          string   `json:"subject,omitempty"`
	Attendees        []string `json:"attendees,omitempty"`
	StartTime        string   `json:"startTime,omitempty"`
	DurationMinutes  int      `json:"durationMinutes,omitempty"`
	InterviewerEmail string   `json:"interviewerEmail,omitempty"`
	CandidateEmail   string   `json:"candidateEmail,omitempty"`
	MeetingLink      string   `json:"meetingLink,omitempty"`
	WebLink          string   `json:"webLink,omitempty"`
}

// AwaitingStep 等待面试结束 / 转写
type AwaitingStep struct {
	Completed     bool `json:"completed"`
	HasTranscript bool `json:"hasTranscript"`
}

// AnalysisStep AI 分析
type AnalysisStep struct {
	Completed bool        `json:"completed"`
	Analysis  *AIAnalysis `json:"analysis,omitempty"`
}

// Timeline 由后端记录推导出的展示结构，从不持久化
type Timeline struct {
	Stage    Stage        `json:"stage"`
	Invite   InviteStep   `json:"invite"`
	Awaiting AwaitingStep `json:"awaiting"`
	Analysis AnalysisStep `json:"analysis"`
}
