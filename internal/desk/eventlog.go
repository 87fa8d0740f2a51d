package desk

import (
	"sync"
	"time"

	"recruit-desk/internal/state"
	"recruit-desk/internal/types"
)

// EventLogEntry 状态仓库的一条通知摘要
type EventLogEntry struct {
	Seq   uint64    `json:"seq"`
	Slice string    `json:"slice"`
	Count int       `json:"count"`
	At    time.Time `json:"at"`
}

// eventLog 保存最近 N 条通知的环形缓冲
type eventLog struct {
	mu      sync.Mutex
	entries []EventLogEntry
	next    int
	full    bool
	now     func() time.Time
}

func newEventLog(size int, now func() time.Time) *eventLog {
	if size <= 0 {
		size = 50
	}
	return &eventLog{entries: make([]EventLogEntry, size), now: now}
}

func (l *eventLog) observe(n state.Notification) {
	entry := EventLogEntry{Seq: n.Seq, Slice: n.Slice, Count: snapshotLen(n.Snapshot), At: l.now()}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.next] = entry
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
}

// recent 按时间顺序返回最近的 limit 条
func (l *eventLog) recent(limit int) []EventLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []EventLogEntry
	if l.full {
		out = append(out, l.entries[l.next:]...)
	}
	out = append(out, l.entries[:l.next]...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func snapshotLen(snapshot any) int {
	switch v := snapshot.(type) {
	case []types.Profile:
		return len(v)
	case []types.Applicant:
		return len(v)
	case []types.InterviewRecord:
		return len(v)
	case []types.SearchRecord:
		return len(v)
	case state.Selection:
		return 1
	}
	return 0
}
