package desk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"recruit-desk/internal/apperr"
	"recruit-desk/internal/constants"
	"recruit-desk/internal/outbox"
	"recruit-desk/internal/persist"
	"recruit-desk/internal/reconciler"
	"recruit-desk/internal/scheduling"
	"recruit-desk/internal/searchcache"
	"recruit-desk/internal/state"
	"recruit-desk/internal/storage"
	"recruit-desk/internal/transcript"
	"recruit-desk/internal/types"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
)

// 候选人 ID 由 searchID 和主页链接确定，同一次搜索里重复出现的链接得到同一个 ID
var applicantNamespace = uuid.Must(uuid.FromString("6f1c8e52-3b0e-4f57-9d1a-2c7b4e8a9f10"))

// Workspace 一个会话的全部状态
type Workspace struct {
	id       string
	collab   Collaborators
	scopes   persist.Scopes
	searches SearchRepository
	events   outbox.Writer

	store       *state.Store
	cache       *searchcache.Cache
	tracker     *reconciler.Reconciler
	scheduler   *scheduling.Workflow
	transcripts *transcript.Service
	eventLog    *eventLog

	// persistMu 串行化持久作用域上的读改写，例如 interviewQuestions 和 savedProfiles
	persistMu sync.Mutex

	now          func() time.Time
	historyLimit int
	log          zerolog.Logger
}

// ID 工作区 ID
func (w *Workspace) ID() string { return w.id }

// Store 工作区的状态仓库
func (w *Workspace) Store() *state.Store { return w.store }

// SearchOutcome 一次搜索的结果
type SearchOutcome struct {
	Result  types.SearchResult  `json:"result"`
	Record  *types.SearchRecord `json:"record,omitempty"`
	Cached  bool                `json:"cached"`
	Warning string              `json:"warning,omitempty"`
}

// Search 按职位描述搜索候选人。30 分钟内的相同查询直接返回缓存。
func (w *Workspace) Search(ctx context.Context, jobDescription string, isJobRequisition, refresh bool) (SearchOutcome, error) {
	const op = "match"
	if strings.TrimSpace(jobDescription) == "" {
		return SearchOutcome{}, apperr.Validation(op, "jobDescription", "Job description is required.")
	}

	if refresh {
		if err := w.cache.Invalidate(ctx, jobDescription); err != nil {
			w.log.Warn().Err(err).Msg("清除搜索缓存失败")
		}
	}
	if cached, ok := w.cache.Get(jobDescription); ok {
		w.showResult(cached)
		return SearchOutcome{Result: cached, Cached: true}, nil
	}
	if !w.cache.MarkLoading(jobDescription) {
		if cached, ok := w.cache.Get(jobDescription); ok {
			w.showResult(cached)
			return SearchOutcome{Result: cached, Cached: true}, nil
		}
		return SearchOutcome{}, apperr.Conflict(op, "A search for this job description is already running.")
	}
	defer w.cache.ClearLoading(jobDescription)

	matches, err := w.collab.Match(ctx, jobDescription)
	if err != nil {
		w.log.Warn().Err(err).Msg("候选人匹配失败")
		return SearchOutcome{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return SearchOutcome{}, fmt.Errorf("生成搜索ID失败: %w", err)
	}
	searchID := id.String()
	profiles := toProfiles(searchID, matches)
	result := types.SearchResult{SearchID: searchID, Profiles: profiles, TotalMatches: len(profiles)}
	record := types.SearchRecord{
		SearchID:         searchID,
		JobDescription:   strings.TrimSpace(jobDescription),
		CreatedAt:        w.now().UTC(),
		TotalMatches:     len(profiles),
		SearchStatus:     types.SearchStatusCompleted,
		IsJobRequisition: isJobRequisition,
	}

	var warnings []string
	if err := w.searches.Create(ctx, w.id, record); err != nil {
		w.log.Warn().Err(err).Str("search_id", searchID).Msg("保存搜索记录失败")
		warnings = append(warnings, "Search history could not be saved.")
	}
	if err := w.cache.Set(ctx, jobDescription, result); err != nil {
		w.log.Warn().Err(err).Str("search_id", searchID).Msg("写入搜索缓存失败")
		warnings = append(warnings, "Search results could not be cached.")
	}

	w.showResult(result)
	history := w.store.SearchHistory()
	w.store.SetSearchHistory(append([]types.SearchRecord{record}, history...))

	w.log.Info().Str("search_id", searchID).Int("matches", len(profiles)).Msg("搜索完成")
	return SearchOutcome{Result: result, Record: &record, Warning: strings.Join(warnings, " ")}, nil
}

func (w *Workspace) showResult(result types.SearchResult) {
	w.store.SetProfiles(result.Profiles)
	w.store.UpdateSelection(func(sel state.Selection) state.Selection {
		sel.SearchID = result.SearchID
		return sel
	})
}

// toProfiles 把匹配结果转换为候选人，同一链接只保留第一条
func toProfiles(searchID string, matches []types.MatchProfile) []types.Profile {
	seen := make(map[string]bool, len(matches))
	out := make([]types.Profile, 0, len(matches))
	for _, m := range matches {
		link := strings.TrimSpace(m.Link)
		key := link
		if key == "" {
			key = m.Title + "|" + m.Snippet
		}
		if seen[key] {
			continue
		}
		seen[key] = true

		name, position := splitTitle(m.Title)
		if m.Position != "" {
			position = m.Position
		}
		out = append(out, types.Profile{
			ApplicantID: uuid.NewV5(applicantNamespace, searchID+"|"+key).String(),
			SearchID:    searchID,
			ProfileMetadata: types.ProfileMetadata{
				Name:         name,
				Position:     position,
				Link:         link,
				ShortSummary: strings.TrimSpace(m.Snippet),
				Score:        clampScore(m.Score),
				Platform:     m.Platform,
			},
		})
	}
	return out
}

// splitTitle 搜索结果标题通常是 "姓名 - 职位 - 平台"
func splitTitle(title string) (string, string) {
	parts := strings.SplitN(title, " - ", 2)
	name := strings.TrimSpace(parts[0])
	if len(parts) == 1 {
		return name, ""
	}
	position := strings.TrimSpace(parts[1])
	if i := strings.LastIndex(position, " | "); i >= 0 {
		position = strings.TrimSpace(position[:i])
	}
	return name, position
}

func clampScore(s float64) float64 {
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	if s > 1 {
		// 部分匹配服务返回百分制
		if s <= 100 {
			return s / 100
		}
		return 1
	}
	return s
}

// SearchHistory 从仓库刷新搜索历史
func (w *Workspace) SearchHistory(ctx context.Context) ([]types.SearchRecord, error) {
	history, err := w.searches.List(ctx, w.id, w.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("读取搜索历史失败: %w", err)
	}
	w.store.SetSearchHistory(history)
	return history, nil
}

// DeleteResult 删除搜索时清理的数据
type DeleteResult struct {
	SearchID          string   `json:"searchId"`
	PurgedApplicants  []string `json:"purgedApplicants"`
	PurgedInterviews  int      `json:"purgedInterviews"`
	CacheEntryRemoved bool     `json:"cacheEntryRemoved"`
	Warning           string   `json:"warning,omitempty"`
}

// DeleteSearch 删除搜索记录，并清除所有引用它的本地数据
func (w *Workspace) DeleteSearch(ctx context.Context, searchID string) (DeleteResult, error) {
	const op = "delete-search"
	rec, err := w.searches.Get(ctx, w.id, searchID)
	if errors.Is(err, storage.ErrSearchNotFound) {
		return DeleteResult{}, apperr.NotFound(op, "Search not found.")
	}
	if err != nil {
		return DeleteResult{}, fmt.Errorf("读取搜索记录失败: %w", err)
	}
	if err := w.searches.Delete(ctx, w.id, searchID); err != nil && !errors.Is(err, storage.ErrSearchNotFound) {
		return DeleteResult{}, fmt.Errorf("删除搜索记录失败: %w", err)
	}

	purged := make(map[string]bool)
	for _, p := range w.store.Profiles() {
		if p.SearchID == searchID {
			purged[p.ApplicantID] = true
		}
	}
	for _, a := range w.store.AtsProfiles() {
		if a.SearchID == searchID {
			purged[a.ApplicantID] = true
		}
	}
	for _, p := range w.store.SavedProfiles() {
		if p.SearchID == searchID {
			purged[p.ApplicantID] = true
		}
	}
	belongs := func(applicantID, recSearchID string) bool {
		return recSearchID == searchID || purged[applicantID]
	}

	result := DeleteResult{SearchID: searchID}
	var warnings []string

	w.store.SetProfiles(filterProfiles(w.store.Profiles(), belongs))
	w.persistMu.Lock()
	saved := w.store.SavedProfiles()
	keptSaved := filterProfiles(saved, belongs)
	if len(keptSaved) != len(saved) {
		w.store.SetSavedProfiles(keptSaved)
		if err := w.scopes.Durable.Save(ctx, constants.EntrySavedProfiles, keptSaved); err != nil {
			warnings = append(warnings, "Saved profiles could not be updated.")
		}
	}
	w.persistMu.Unlock()
	w.store.UpdateAtsProfiles(func(all []types.Applicant) []types.Applicant {
		kept := all[:0]
		for _, a := range all {
			if !belongs(a.ApplicantID, a.SearchID) {
				kept = append(kept, a)
			}
		}
		return kept
	})
	w.store.UpdateInterviews(func(all []types.InterviewRecord) []types.InterviewRecord {
		kept := all[:0]
		for _, r := range all {
			if belongs(r.ApplicantID, r.SearchID) {
				result.PurgedInterviews++
				continue
			}
			kept = append(kept, r)
		}
		return kept
	})
	history := w.store.SearchHistory()
	keptHistory := history[:0]
	for _, h := range history {
		if h.SearchID != searchID {
			keptHistory = append(keptHistory, h)
		}
	}
	w.store.SetSearchHistory(keptHistory)
	w.store.UpdateSelection(func(sel state.Selection) state.Selection {
		if sel.SearchID == searchID {
			sel.SearchID = ""
		}
		if purged[sel.ApplicantID] {
			sel.ApplicantID = ""
			sel.InterviewID = ""
			sel.ActiveStep = ""
		}
		return sel
	})

	removed, err := w.cache.InvalidateSearch(ctx, searchID)
	if err != nil {
		warnings = append(warnings, "Search cache could not be updated.")
	}
	if err := w.cache.Invalidate(ctx, rec.JobDescription); err != nil {
		warnings = append(warnings, "Search cache could not be updated.")
	}
	result.CacheEntryRemoved = removed

	for id := range purged {
		result.PurgedApplicants = append(result.PurgedApplicants, id)
	}
	w.tracker.Forget(result.PurgedApplicants...)

	if w.events != nil {
		err := w.events.Enqueue(ctx, outbox.Event{
			AggregateID: searchID,
			WorkspaceID: w.id,
			Type:        constants.EventSearchDeleted,
			Data: storage.SearchDeletedData{
				SearchID:          searchID,
				PurgedApplicants:  result.PurgedApplicants,
				PurgedInterviews:  result.PurgedInterviews,
				CacheEntryRemoved: removed,
			},
		})
		if err != nil {
			w.log.Warn().Err(err).Str("search_id", searchID).Msg("写入删除事件失败")
		}
	}

	result.Warning = strings.Join(dedupe(warnings), " ")
	w.log.Info().
		Str("search_id", searchID).
		Int("applicants", len(result.PurgedApplicants)).
		Int("interviews", result.PurgedInterviews).
		Msg("搜索已删除")
	return result, nil
}

func filterProfiles(in []types.Profile, drop func(applicantID, searchID string) bool) []types.Profile {
	out := make([]types.Profile, 0, len(in))
	for _, p := range in {
		if !drop(p.ApplicantID, p.SearchID) {
			out = append(out, p)
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Shortlist 把当前搜索结果中的候选人加入跟踪列表，已在列表中的保持不变
func (w *Workspace) Shortlist(ctx context.Context, searchID string, applicantIDs []string) ([]types.Applicant, error) {
	const op = "shortlist"
	if len(applicantIDs) == 0 {
		return nil, apperr.Validation(op, "applicantIds", "Select at least one applicant.")
	}
	if _, err := w.searches.Get(ctx, w.id, searchID); errors.Is(err, storage.ErrSearchNotFound) {
		return nil, apperr.NotFound(op, "Search not found.")
	} else if err != nil {
		return nil, fmt.Errorf("读取搜索记录失败: %w", err)
	}

	bySearch := make(map[string]types.Profile)
	for _, p := range w.store.Profiles() {
		if p.SearchID == searchID {
			bySearch[p.ApplicantID] = p
		}
	}
	if cached, ok := w.cachedResult(searchID); ok {
		for _, p := range cached.Profiles {
			if _, exists := bySearch[p.ApplicantID]; !exists {
				bySearch[p.ApplicantID] = p
			}
		}
	}

	selected := make([]types.Profile, 0, len(applicantIDs))
	for _, id := range applicantIDs {
		p, ok := bySearch[id]
		if !ok {
			return nil, apperr.Validation(op, "applicantIds", fmt.Sprintf("Applicant %s is not part of this search.", id))
		}
		selected = append(selected, p)
	}

	count := 0
	w.store.UpdateAtsProfiles(func(all []types.Applicant) []types.Applicant {
		tracked := make(map[string]bool, len(all))
		for _, a := range all {
			tracked[a.ApplicantID] = true
		}
		for _, p := range selected {
			if tracked[p.ApplicantID] {
				continue
			}
			tracked[p.ApplicantID] = true
			all = append(all, types.Applicant{
				ApplicantID:   p.ApplicantID,
				SearchID:      p.SearchID,
				Profile:       p.ProfileMetadata,
				MeetingStatus: types.MeetingStatusInvite,
			})
		}
		for _, a := range all {
			if a.SearchID == searchID {
				count++
			}
		}
		return all
	})

	if err := w.searches.UpdateShortlisted(ctx, w.id, searchID, count); err != nil {
		w.log.Warn().Err(err).Str("search_id", searchID).Msg("更新入围人数失败")
	}
	history := w.store.SearchHistory()
	for i := range history {
		if history[i].SearchID == searchID {
			history[i].ShortlistedCount = count
		}
	}
	w.store.SetSearchHistory(history)

	var out []types.Applicant
	for _, a := range w.store.AtsProfiles() {
		if a.SearchID == searchID {
			out = append(out, a)
		}
	}
	return out, nil
}

// cachedResult 在缓存中按 searchID 查找结果
func (w *Workspace) cachedResult(searchID string) (types.SearchResult, bool) {
	for _, h := range w.store.SearchHistory() {
		if h.SearchID != searchID {
			continue
		}
		if res, ok := w.cache.Get(h.JobDescription); ok && res.SearchID == searchID {
			return res, true
		}
	}
	return types.SearchResult{}, false
}

// SavedProfiles 收藏的候选人
func (w *Workspace) SavedProfiles() []types.Profile {
	return w.store.SavedProfiles()
}

// SetSavedProfiles 替换收藏并写入持久作用域
func (w *Workspace) SetSavedProfiles(ctx context.Context, profiles []types.Profile) error {
	for _, p := range profiles {
		if strings.TrimSpace(p.ApplicantID) == "" {
			return apperr.Validation("saved-profiles", "applicantId", "Every saved profile needs an applicant ID.")
		}
	}
	w.persistMu.Lock()
	defer w.persistMu.Unlock()
	w.store.SetSavedProfiles(profiles)
	if err := w.scopes.Durable.Save(ctx, constants.EntrySavedProfiles, w.store.SavedProfiles()); err != nil {
		return fmt.Errorf("保存收藏失败: %w", err)
	}
	return nil
}

// RecentEvents 最近的状态通知
func (w *Workspace) RecentEvents(limit int) []EventLogEntry {
	return w.eventLog.recent(limit)
}
