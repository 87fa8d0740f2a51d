package storage

import (
	"encoding/json"
	"time"
)

// EventMessage 发布到 recruit.events 交换机的消息体
type EventMessage struct {
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	AggregateID string          `json:"aggregate_id"`
	WorkspaceID string          `json:"workspace_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Data        json.RawMessage `json:"data"`
}

// InterviewScheduledData interview.scheduled 事件数据
type InterviewScheduledData struct {
	InterviewID string `json:"interview_id"`
	ApplicantID string `json:"applicant_id"`
	SearchID    string `json:"search_id,omitempty"`
	RoundNumber int    `json:"round_number"`
	StartTime   string `json:"start_time"`
}

// SearchDeletedData search.deleted 事件数据
type SearchDeletedData struct {
	SearchID          string   `json:"search_id"`
	PurgedApplicants  []string `json:"purged_applicants,omitempty"`
	PurgedInterviews  int      `json:"purged_interviews"`
	CacheEntryRemoved bool     `json:"cache_entry_removed"`
}

// TranscriptArchivedData transcript.archived 事件数据
type TranscriptArchivedData struct {
	ApplicantID string `json:"applicant_id"`
	MeetingID   string `json:"meeting_id"`
	ObjectPath  string `json:"object_path"`
	Length      int    `json:"length"`
}
