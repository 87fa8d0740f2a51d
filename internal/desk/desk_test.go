package desk

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"recruit-desk/internal/apperr"
	"recruit-desk/internal/config"
	"recruit-desk/internal/constants"
	"recruit-desk/internal/outbox"
	"recruit-desk/internal/persist"
	"recruit-desk/internal/scheduling"
	"recruit-desk/internal/state"
	"recruit-desk/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCollaborators struct {
	mu          sync.Mutex
	matchCalls  int
	matches     []types.MatchProfile
	matchErr    error
	tracking    map[string]*types.TrackingRecord
	transcripts map[string]*types.TranscriptResponse
	questions   string
}

func (f *fakeCollaborators) Match(context.Context, string) ([]types.MatchProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matchCalls++
	return f.matches, f.matchErr
}

func (f *fakeCollaborators) GenerateQuestions(_ context.Context, jd, summary string) (string, error) {
	return f.questions + " for " + jd, nil
}

func (f *fakeCollaborators) ApplicantTracking(_ context.Context, id string) (*types.TrackingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.tracking[id]
	if !ok {
		return nil, apperr.Collaborator("applicant-tracking", 404, "", "")
	}
	out := *rec
	return &out, nil
}

func (f *fakeCollaborators) ScheduleMeeting(_ context.Context, req types.MeetingRequest) (*types.MeetingResponse, error) {
	return &types.MeetingResponse{ID: "m1", Success: true}, nil
}

func (f *fakeCollaborators) FetchTranscript(_ context.Context, applicantID, meetingID, _ string) (*types.TranscriptResponse, error) {
	if resp, ok := f.transcripts[meetingID]; ok {
		return resp, nil
	}
	return &types.TranscriptResponse{Status: types.TranscriptNoTranscript}, nil
}

type testEnv struct {
	manager *Manager
	collab  *fakeCollaborators
	events  *outbox.Recorder
	repo    *MemorySearchRepo
	scopes  persist.Factory
	clock   *time.Time
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	loc, err := config.ParseUTCOffset("+05:30")
	require.NoError(t, err)
	now := time.Date(2025, 2, 28, 12, 0, 0, 0, loc)

	env := &testEnv{
		collab: &fakeCollaborators{
			matches: []types.MatchProfile{
				{Title: "Asha K - Backend Engineer | LinkedIn", Snippet: "Go, Kafka", Link: "https://in.example/asha", Score: 0.92, Platform: "linkedin"},
				{Title: "Ravi P - SRE", Snippet: "Kubernetes", Link: "https://in.example/ravi", Score: 87},
				{Title: "Asha K duplicate", Link: "https://in.example/asha", Score: 0.5},
			},
			tracking:    map[string]*types.TrackingRecord{},
			transcripts: map[string]*types.TranscriptResponse{},
			questions:   "1. Explain goroutines",
		},
		events: &outbox.Recorder{},
		repo:   NewMemorySearchRepo(),
		scopes: persist.MemoryFactory(),
		clock:  &now,
	}
	env.manager = env.newManager()
	return env
}

func (e *testEnv) newManager() *Manager {
	return NewManager(Deps{
		Collaborators: e.collab,
		Scopes:        e.scopes,
		Searches:      e.repo,
		Events:        e.events,
		Now:           func() time.Time { return *e.clock },
	}, Config{
		Scheduling:   scheduling.Config{Location: e.clock.Location(), DurationMinutes: 60, SubjectMaxRunes: 40},
		EventLogSize: 10,
	})
}

func TestWorkspacesAreIsolated(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	a := env.manager.Workspace(ctx, "s1")
	assert.Same(t, a, env.manager.Workspace(ctx, " s1 "))
	assert.Equal(t, constants.DefaultWorkspace, env.manager.Workspace(ctx, "").ID())

	_, err := a.Search(ctx, "Go engineer", false, false)
	require.NoError(t, err)
	assert.Empty(t, env.manager.Workspace(ctx, "s2").Store().Profiles())
	assert.Equal(t, 3, env.manager.Len())
}

func TestIdleWorkspacesAreEvictedAndRestored(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	a := env.manager.Workspace(ctx, "s1")
	require.NoError(t, a.SetSavedProfiles(ctx, []types.Profile{{ApplicantID: "A1", SearchID: "S1"}}))
	env.manager.Workspace(ctx, "s2")
	assert.Equal(t, 2, env.manager.Len())

	*env.clock = env.clock.Add(20 * time.Minute)
	env.manager.Workspace(ctx, "s2")
	*env.clock = env.clock.Add(15 * time.Minute)

	assert.Equal(t, 1, env.manager.EvictIdle())
	assert.Equal(t, 1, env.manager.Len())

	restored := env.manager.Workspace(ctx, "s1")
	assert.NotSame(t, a, restored)
	assert.Len(t, restored.SavedProfiles(), 1)
}

func TestWorkspaceCapEvictsLeastRecentlyUsed(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	m := NewManager(Deps{
		Collaborators: env.collab,
		Scopes:        env.scopes,
		Searches:      env.repo,
		Now:           func() time.Time { return *env.clock },
	}, Config{MaxWorkspaces: 2})

	first := m.Workspace(ctx, "a")
	*env.clock = env.clock.Add(time.Second)
	m.Workspace(ctx, "b")
	*env.clock = env.clock.Add(time.Second)
	m.Workspace(ctx, "a")
	*env.clock = env.clock.Add(time.Second)
	m.Workspace(ctx, "c")

	assert.Equal(t, 2, m.Len())
	assert.Same(t, first, m.Workspace(ctx, "a"))
}

func TestConcurrentOpenReturnsOneWorkspace(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	const n = 16
	got := make([]*Workspace, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = env.manager.Workspace(ctx, "shared")
		}(i)
	}
	wg.Wait()

	for _, ws := range got {
		assert.Same(t, got[0], ws)
	}
	assert.Equal(t, 1, env.manager.Len())
}

func TestSearchUsesCacheAndDedupesProfiles(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	ws := env.manager.Workspace(ctx, "s1")

	first, err := ws.Search(ctx, "Senior Go Engineer", true, false)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	require.Len(t, first.Result.Profiles, 2)
	assert.Equal(t, "Asha K", first.Result.Profiles[0].Name)
	assert.Equal(t, "Backend Engineer", first.Result.Profiles[0].Position)
	assert.InDelta(t, 0.87, first.Result.Profiles[1].Score, 1e-9)
	require.NotNil(t, first.Record)
	assert.True(t, first.Record.IsJobRequisition)

	second, err := ws.Search(ctx, "  senior go   engineer ", false, false)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Result.SearchID, second.Result.SearchID)
	assert.Equal(t, 1, env.collab.matchCalls)

	*env.clock = env.clock.Add(31 * time.Minute)
	third, err := ws.Search(ctx, "Senior Go Engineer", false, false)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.NotEqual(t, first.Result.SearchID, third.Result.SearchID)
	assert.Equal(t, 2, env.collab.matchCalls)

	history, err := ws.SearchHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSearchFailureClearsLoading(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.collab.matchErr = apperr.Collaborator("match", 500, "search index unavailable", "")
	ws := env.manager.Workspace(ctx, "s1")

	_, err := ws.Search(ctx, "Go", false, false)
	require.Error(t, err)
	assert.False(t, ws.cache.IsLoading("Go"))

	env.collab.matchErr = nil
	_, err = ws.Search(ctx, "Go", false, false)
	require.NoError(t, err)

	_, err = ws.Search(ctx, "   ", false, false)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSearchCacheSurvivesRestart(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	first, err := env.manager.Workspace(ctx, "s1").Search(ctx, "Go", false, false)
	require.NoError(t, err)

	restarted := env.newManager()
	again, err := restarted.Workspace(ctx, "s1").Search(ctx, "go", false, false)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, first.Result.SearchID, again.Result.SearchID)
	assert.Len(t, restarted.Workspace(ctx, "s1").Store().SearchHistory(), 1)
}

func shortlistFirst(t *testing.T, env *testEnv, ws *Workspace) (types.SearchResult, types.Applicant) {
	t.Helper()
	ctx := context.Background()
	out, err := ws.Search(ctx, "Senior Go Engineer", false, false)
	require.NoError(t, err)
	applicants, err := ws.Shortlist(ctx, out.Result.SearchID, []string{out.Result.Profiles[0].ApplicantID})
	require.NoError(t, err)
	require.Len(t, applicants, 1)
	return out.Result, applicants[0]
}

func TestShortlist(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	ws := env.manager.Workspace(ctx, "s1")
	result, applicant := shortlistFirst(t, env, ws)

	assert.Equal(t, types.MeetingStatusInvite, applicant.MeetingStatus)
	rec, err := env.repo.Get(ctx, "s1", result.SearchID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.ShortlistedCount)

	_, err = ws.Shortlist(ctx, result.SearchID, []string{"unknown"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = ws.Shortlist(ctx, "missing", []string{applicant.ApplicantID})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	// 重复加入不会覆盖已同步的数据
	_, err = ws.Shortlist(ctx, result.SearchID, []string{applicant.ApplicantID, result.Profiles[1].ApplicantID})
	require.NoError(t, err)
	assert.Len(t, ws.Store().AtsProfiles(), 2)
}

func TestTrackScheduleAndTranscriptFlow(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	ws := env.manager.Workspace(ctx, "s1")
	_, applicant := shortlistFirst(t, env, ws)
	id := applicant.ApplicantID

	env.collab.tracking[id] = &types.TrackingRecord{MeetingStatus: types.MeetingStatusInvite}
	view, err := ws.Track(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StepInvite, view.ActiveStep)
	assert.Equal(t, "Asha K", view.Applicant.Profile.Name)

	form := types.MeetingForm{CandidateEmail: "asha@y.io", InterviewerEmail: "host@x.io", Date: "2025-03-01", Time: "10:00"}
	res, err := ws.ScheduleInterview(ctx, id, form, types.SearchContext{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Record.RoundNumber)
	assert.Equal(t, "Interview: Senior Go Engineer", res.Record.Subject)
	assert.Len(t, env.events.OfType(constants.EventInterviewScheduled), 1)

	_, err = ws.ScheduleInterview(ctx, id, form, types.SearchContext{})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	env.collab.tracking[id] = &types.TrackingRecord{
		MeetingStatus: types.MeetingStatusScheduled,
		MeetingInfo:   []types.MeetingInfo{{MeetingID: "m1"}},
	}
	view, err = ws.Track(ctx, id)
	require.NoError(t, err)
	assert.True(t, view.Timeline.Invite.Completed)
	assert.False(t, view.Timeline.Awaiting.Completed)
	assert.Equal(t, types.StepAwaiting, view.ActiveStep)

	env.collab.transcripts["m1"] = &types.TranscriptResponse{Status: types.TranscriptInProgress}
	out, err := ws.FetchTranscript(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, types.TranscriptInProgress, out.Status)

	current, ok := ws.tracker.Current(id)
	require.True(t, ok)
	assert.Equal(t, view.Timeline, current.Timeline)
	assert.Nil(t, current.Applicant.Transcription)
}

func TestUpdateInterview(t *testing.T) {
	env := newEnv(t)
	ws := env.manager.Workspace(context.Background(), "s1")
	ws.Store().SetInterviews([]types.InterviewRecord{{ID: "m1", ApplicantID: "A1", Status: types.InterviewStatusScheduled, Verdict: types.VerdictPending}})

	selected := types.VerdictSelected
	rec, err := ws.UpdateInterview("m1", types.InterviewPatch{Verdict: &selected})
	require.NoError(t, err)
	assert.Equal(t, types.VerdictSelected, rec.Verdict)

	bogus := types.Verdict("maybe")
	_, err = ws.UpdateInterview("m1", types.InterviewPatch{Verdict: &bogus})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = ws.UpdateInterview("nope", types.InterviewPatch{Verdict: &selected})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestQuestionsArePersisted(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	ws := env.manager.Workspace(ctx, "s1")
	_, applicant := shortlistFirst(t, env, ws)

	set, warning, err := ws.GenerateQuestions(ctx, applicant.ApplicantID, "")
	require.NoError(t, err)
	assert.Empty(t, warning)
	assert.Equal(t, "1. Explain goroutines for Senior Go Engineer", set.Questions)

	got, err := env.newManager().Workspace(ctx, "s1").Questions(ctx, applicant.ApplicantID)
	require.NoError(t, err)
	assert.Equal(t, set.Questions, got.Questions)

	_, err = ws.Questions(ctx, "other")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestConcurrentQuestionsKeepEveryApplicant(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	ws := env.manager.Workspace(ctx, "s1")
	out, err := ws.Search(ctx, "Senior Go Engineer", false, false)
	require.NoError(t, err)
	ids := []string{out.Result.Profiles[0].ApplicantID, out.Result.Profiles[1].ApplicantID}
	_, err = ws.Shortlist(ctx, out.Result.SearchID, ids)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for round := 0; round < 5; round++ {
		for _, id := range ids {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, warning, err := ws.GenerateQuestions(ctx, id, "")
				assert.NoError(t, err)
				assert.Empty(t, warning)
			}(id)
		}
	}
	wg.Wait()

	reopened := env.newManager().Workspace(ctx, "s1")
	for _, id := range ids {
		_, err := reopened.Questions(ctx, id)
		assert.NoError(t, err, id)
	}
}

func TestConcurrentSavedProfilesMatchStore(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	ws := env.manager.Workspace(ctx, "s1")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			profiles := make([]types.Profile, i%3+1)
			for j := range profiles {
				profiles[j] = types.Profile{ApplicantID: fmt.Sprintf("A%d", j), SearchID: "S1"}
			}
			assert.NoError(t, ws.SetSavedProfiles(ctx, profiles))
		}(i)
	}
	wg.Wait()

	persisted := env.newManager().Workspace(ctx, "s1").SavedProfiles()
	assert.Equal(t, ws.SavedProfiles(), persisted)
}

func TestSavedProfilesPersisted(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	ws := env.manager.Workspace(ctx, "s1")

	require.NoError(t, ws.SetSavedProfiles(ctx, []types.Profile{{ApplicantID: "A1", SearchID: "S1"}}))
	assert.Len(t, env.newManager().Workspace(ctx, "s1").SavedProfiles(), 1)

	err := ws.SetSavedProfiles(ctx, []types.Profile{{}})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestDeleteSearchPurgesReferences(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	ws := env.manager.Workspace(ctx, "s1")
	result, applicant := shortlistFirst(t, env, ws)
	id := applicant.ApplicantID

	require.NoError(t, ws.SetSavedProfiles(ctx, append(ws.Store().Profiles(), types.Profile{ApplicantID: "keep", SearchID: "other"})))
	ws.Store().SetInterviews([]types.InterviewRecord{
		{ID: "m1", ApplicantID: id, SearchID: result.SearchID, Status: types.InterviewStatusScheduled},
		{ID: "m9", ApplicantID: "keep", SearchID: "other", Status: types.InterviewStatusScheduled},
	})
	ws.Store().SetSelection(state.Selection{SearchID: result.SearchID, ApplicantID: id, ActiveStep: types.StepInvite})

	out, err := ws.DeleteSearch(ctx, result.SearchID)
	require.NoError(t, err)
	assert.Len(t, out.PurgedApplicants, 2)
	assert.Equal(t, 1, out.PurgedInterviews)
	assert.True(t, out.CacheEntryRemoved)

	store := ws.Store()
	assert.Empty(t, store.Profiles())
	assert.Empty(t, store.AtsProfiles())
	assert.Empty(t, store.SearchHistory())
	require.Len(t, store.SavedProfiles(), 1)
	assert.Equal(t, "keep", store.SavedProfiles()[0].ApplicantID)
	require.Len(t, store.Interviews(), 1)
	assert.Equal(t, "m9", store.Interviews()[0].ID)
	assert.Equal(t, state.Selection{}, store.Selection())

	_, ok := ws.cache.Get("Senior Go Engineer")
	assert.False(t, ok)
	assert.Len(t, env.events.OfType(constants.EventSearchDeleted), 1)

	_, err = ws.DeleteSearch(ctx, result.SearchID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestRecentEvents(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	ws := env.manager.Workspace(ctx, "s1")
	for i := 0; i < 15; i++ {
		ws.Store().SetProfiles(nil)
	}

	events := ws.RecentEvents(0)
	require.Len(t, events, 10)
	for i := 1; i < len(events); i++ {
		assert.Equal(t, events[i-1].Seq+1, events[i].Seq)
	}
	assert.Len(t, ws.RecentEvents(3), 3)
	assert.Equal(t, events[len(events)-1].Seq, ws.RecentEvents(1)[0].Seq)
}

func TestSplitTitleAndScore(t *testing.T) {
	name, position := splitTitle("Asha K - Backend Engineer - Acme | LinkedIn")
	assert.Equal(t, "Asha K", name)
	assert.Equal(t, "Backend Engineer - Acme", position)

	name, position = splitTitle("Solo")
	assert.Equal(t, "Solo", name)
	assert.Empty(t, position)

	assert.Equal(t, 0.0, clampScore(-1))
	assert.Equal(t, 0.5, clampScore(50))
	assert.Equal(t, 1.0, clampScore(500))
}
