// Package state 是一个工作区内的客户端状态仓库。
// 每次写入整体替换一个切片，并按调用顺序同步通知观察者。
package state

import (
	"sync"

	"recruit-desk/internal/types"
)

// 切片名称，出现在通知中
const (
	SliceProfiles      = "profiles"
	SliceSavedProfiles = "savedProfiles"
	SliceAtsProfiles   = "atsProfiles"
	SliceInterviews    = "interviews"
	SliceSearchHistory = "searchHistory"
	SliceSelection     = "selection"
)

// Selection 当前选中的对象和界面状态，只在本次会话内有效
type Selection struct {
	SearchID    string          `json:"searchId,omitempty"`
	ApplicantID string          `json:"applicantId,omitempty"`
	InterviewID string          `json:"interviewId,omitempty"`
	ActiveStep  types.Step      `json:"activeStep,omitempty"`
	Modals      map[string]bool `json:"modals,omitempty"`
}

// Clone 深拷贝
func (s Selection) Clone() Selection {
	out := s
	if s.Modals != nil {
		out.Modals = make(map[string]bool, len(s.Modals))
		for k, v := range s.Modals {
			out.Modals[k] = v
		}
	}
	return out
}

// Notification 一次写入的通知，Snapshot 为该切片写入后的完整副本
type Notification struct {
	Seq      uint64 `json:"seq"`
	Slice    string `json:"slice"`
	Snapshot any    `json:"snapshot"`
}

// Observer 接收通知。观察者在写入方的 goroutine 中同步执行，不能在回调里再写 Store。
type Observer func(Notification)

// Store 客户端状态仓库
type Store struct {
	mu sync.RWMutex
	// notifyMu 覆盖 写入+通知 全过程，保证通知顺序与写入顺序一致
	notifyMu sync.Mutex

	profiles      []types.Profile
	savedProfiles []types.Profile
	atsProfiles   []types.Applicant
	interviews    []types.InterviewRecord
	searchHistory []types.SearchRecord
	selection     Selection

	seq       uint64
	observers map[int]Observer
	nextObsID int
}

// New 创建空仓库
func New() *Store {
	return &Store{observers: make(map[int]Observer)}
}

// Subscribe 注册观察者，返回取消函数
func (s *Store) Subscribe(fn Observer) func() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = fn
	return func() {
		s.notifyMu.Lock()
		defer s.notifyMu.Unlock()
		delete(s.observers, id)
	}
}

// write 在锁内执行 mutate，然后把 snapshot 的结果通知出去
func (s *Store) write(slice string, mutate func() any) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	snapshot := mutate()
	s.seq++
	n := Notification{Seq: s.seq, Slice: slice, Snapshot: snapshot}
	s.mu.Unlock()

	for _, fn := range s.observers {
		fn(n)
	}
}

func cloneProfiles(in []types.Profile) []types.Profile {
	if in == nil {
		return []types.Profile{}
	}
	return append([]types.Profile(nil), in...)
}

func cloneApplicants(in []types.Applicant) []types.Applicant {
	out := make([]types.Applicant, len(in))
	for i, a := range in {
		out[i] = a.Clone()
	}
	return out
}

func cloneInterviews(in []types.InterviewRecord) []types.InterviewRecord {
	out := make([]types.InterviewRecord, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}

func cloneSearches(in []types.SearchRecord) []types.SearchRecord {
	if in == nil {
		return []types.SearchRecord{}
	}
	return append([]types.SearchRecord(nil), in...)
}

// Profiles 当前搜索结果
func (s *Store) Profiles() []types.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneProfiles(s.profiles)
}

// SavedProfiles 收藏的候选人
func (s *Store) SavedProfiles() []types.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneProfiles(s.savedProfiles)
}

// AtsProfiles 进入跟踪流程的候选人
func (s *Store) AtsProfiles() []types.Applicant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneApplicants(s.atsProfiles)
}

// Interviews 所有面试记录
func (s *Store) Interviews() []types.InterviewRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneInterviews(s.interviews)
}

// InterviewsFor 某个候选人的面试记录，保持原有顺序
func (s *Store) InterviewsFor(applicantID string) []types.InterviewRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.InterviewRecord
	for _, r := range s.interviews {
		if r.ApplicantID == applicantID {
			out = append(out, r.Clone())
		}
	}
	return out
}

// SearchHistory 搜索历史
func (s *Store) SearchHistory() []types.SearchRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSearches(s.searchHistory)
}

// Selection 当前选择
func (s *Store) Selection() Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selection.Clone()
}

// SetProfiles 整体替换搜索结果
func (s *Store) SetProfiles(profiles []types.Profile) {
	s.write(SliceProfiles, func() any {
		s.profiles = cloneProfiles(profiles)
		return cloneProfiles(s.profiles)
	})
}

// SetSavedProfiles 整体替换收藏
func (s *Store) SetSavedProfiles(profiles []types.Profile) {
	s.write(SliceSavedProfiles, func() any {
		s.savedProfiles = cloneProfiles(profiles)
		return cloneProfiles(s.savedProfiles)
	})
}

// SetAtsProfiles 整体替换跟踪中的候选人
func (s *Store) SetAtsProfiles(applicants []types.Applicant) {
	s.write(SliceAtsProfiles, func() any {
		s.atsProfiles = cloneApplicants(applicants)
		return cloneApplicants(s.atsProfiles)
	})
}

// SetInterviews 整体替换面试记录
func (s *Store) SetInterviews(records []types.InterviewRecord) {
	s.write(SliceInterviews, func() any {
		s.interviews = cloneInterviews(records)
		return cloneInterviews(s.interviews)
	})
}

// SetSearchHistory 整体替换搜索历史
func (s *Store) SetSearchHistory(records []types.SearchRecord) {
	s.write(SliceSearchHistory, func() any {
		s.searchHistory = cloneSearches(records)
		return cloneSearches(s.searchHistory)
	})
}

// SetSelection 整体替换选择状态
func (s *Store) SetSelection(sel Selection) {
	s.write(SliceSelection, func() any {
		s.selection = sel.Clone()
		return s.selection.Clone()
	})
}

// AddInterview 追加一条面试记录，不去重
func (s *Store) AddInterview(record types.InterviewRecord) {
	s.write(SliceInterviews, func() any {
		s.interviews = append(s.interviews, record.Clone())
		return cloneInterviews(s.interviews)
	})
}

// UpdateInterview 把 patch 合并到 id 对应的记录，没有匹配时不修改数据。
// 无论是否匹配都会发出一次通知。
func (s *Store) UpdateInterview(id string, patch types.InterviewPatch) bool {
	matched := false
	s.write(SliceInterviews, func() any {
		for i, r := range s.interviews {
			if r.ID == id {
				s.interviews[i] = patch.ApplyTo(r)
				matched = true
				break
			}
		}
		return cloneInterviews(s.interviews)
	})
	return matched
}

// UpdateAtsProfiles 对跟踪候选人做读改写，期间其他写入被阻塞
func (s *Store) UpdateAtsProfiles(fn func([]types.Applicant) []types.Applicant) {
	s.write(SliceAtsProfiles, func() any {
		s.atsProfiles = cloneApplicants(fn(cloneApplicants(s.atsProfiles)))
		return cloneApplicants(s.atsProfiles)
	})
}

// UpdateInterviews 对面试记录做读改写
func (s *Store) UpdateInterviews(fn func([]types.InterviewRecord) []types.InterviewRecord) {
	s.write(SliceInterviews, func() any {
		s.interviews = cloneInterviews(fn(cloneInterviews(s.interviews)))
		return cloneInterviews(s.interviews)
	})
}

// UpdateSelection 对选择状态做读改写
func (s *Store) UpdateSelection(fn func(Selection) Selection) {
	s.write(SliceSelection, func() any {
		s.selection = fn(s.selection.Clone()).Clone()
		return s.selection.Clone()
	})
}
