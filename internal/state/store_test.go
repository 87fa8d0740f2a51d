package state

import (
	"sync"
	"testing"

	"recruit-desk/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(id, applicant string, round int) types.InterviewRecord {
	return types.InterviewRecord{
		ID:          id,
		ApplicantID: applicant,
		RoundNumber: round,
		Status:      types.InterviewStatusScheduled,
		Verdict:     types.VerdictPending,
		Attendees:   []string{"host@x.io"},
	}
}

func TestSettersNotifyInOrder(t *testing.T) {
	s := New()
	var got []Notification
	unsubscribe := s.Subscribe(func(n Notification) { got = append(got, n) })

	s.SetProfiles([]types.Profile{{ApplicantID: "A1"}})
	s.AddInterview(record("M1", "A1", 1))
	s.SetSelection(Selection{ApplicantID: "A1"})

	require.Len(t, got, 3)
	assert.Equal(t, SliceProfiles, got[0].Slice)
	assert.Equal(t, SliceInterviews, got[1].Slice)
	assert.Equal(t, SliceSelection, got[2].Slice)
	assert.Less(t, got[0].Seq, got[1].Seq)
	assert.Less(t, got[1].Seq, got[2].Seq)

	snap, ok := got[1].Snapshot.([]types.InterviewRecord)
	require.True(t, ok)
	assert.Equal(t, "M1", snap[0].ID)

	unsubscribe()
	s.SetProfiles(nil)
	assert.Len(t, got, 3)
}

func TestAddInterviewDoesNotDedup(t *testing.T) {
	s := New()
	s.AddInterview(record("M1", "A1", 1))
	s.AddInterview(record("M1", "A1", 1))
	assert.Len(t, s.Interviews(), 2)
}

func TestUpdateInterview(t *testing.T) {
	s := New()
	s.SetInterviews([]types.InterviewRecord{record("M1", "A1", 1), record("M2", "A1", 2)})

	var count int
	s.Subscribe(func(Notification) { count++ })

	verdict := types.VerdictSelected
	assert.True(t, s.UpdateInterview("M2", types.InterviewPatch{Verdict: &verdict}))
	assert.Equal(t, types.VerdictSelected, s.Interviews()[1].Verdict)
	assert.Equal(t, types.VerdictPending, s.Interviews()[0].Verdict)

	before := s.Interviews()
	assert.False(t, s.UpdateInterview("missing", types.InterviewPatch{Verdict: &verdict}))
	assert.Equal(t, before, s.Interviews())
	assert.Equal(t, 2, count)
}

func TestReadsAreCopies(t *testing.T) {
	s := New()
	s.SetInterviews([]types.InterviewRecord{record("M1", "A1", 1)})

	got := s.Interviews()
	got[0].Attendees[0] = "changed@x.io"
	got[0].ID = "changed"

	assert.Equal(t, "M1", s.Interviews()[0].ID)
	assert.Equal(t, "host@x.io", s.Interviews()[0].Attendees[0])

	sel := Selection{Modals: map[string]bool{"schedule": true}}
	s.SetSelection(sel)
	sel.Modals["schedule"] = false
	assert.True(t, s.Selection().Modals["schedule"])
}

func TestInterviewsFor(t *testing.T) {
	s := New()
	s.SetInterviews([]types.InterviewRecord{record("M1", "A1", 1), record("M2", "A2", 1), record("M3", "A1", 2)})

	got := s.InterviewsFor("A1")
	require.Len(t, got, 2)
	assert.Equal(t, "M1", got[0].ID)
	assert.Equal(t, "M3", got[1].ID)
	assert.Empty(t, s.InterviewsFor("A9"))
}

func TestConcurrentWritersKeepNotificationsOrdered(t *testing.T) {
	s := New()
	var mu sync.Mutex
	var seqs []uint64
	s.Subscribe(func(n Notification) {
		mu.Lock()
		seqs = append(seqs, n.Seq)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddInterview(record("M", "A1", 1))
		}()
	}
	wg.Wait()

	require.Len(t, seqs, 20)
	for i := 1; i < len(seqs); i++ {
		assert.Equal(t, seqs[i-1]+1, seqs[i])
	}
	assert.Len(t, s.Interviews(), 20)
}

func TestUpdateHelpers(t *testing.T) {
	s := New()
	s.SetAtsProfiles([]types.Applicant{{ApplicantID: "A1"}})

	s.UpdateAtsProfiles(func(in []types.Applicant) []types.Applicant {
		return append(in, types.Applicant{ApplicantID: "A2"})
	})
	assert.Len(t, s.AtsProfiles(), 2)

	s.UpdateSelection(func(sel Selection) Selection {
		sel.ActiveStep = types.StepAwaiting
		return sel
	})
	assert.Equal(t, types.StepAwaiting, s.Selection().ActiveStep)
}
