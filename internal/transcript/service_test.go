package transcript

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"recruit-desk/internal/apperr"
	"recruit-desk/internal/constants"
	"recruit-desk/internal/outbox"
	"recruit-desk/internal/persist"
	"recruit-desk/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	resp  *types.TranscriptResponse
	err   error
	calls int
}

func (f *fakeSource) FetchTranscript(context.Context, string, string, string) (*types.TranscriptResponse, error) {
	f.calls++
	return f.resp, f.err
}

type fakeArchive struct {
	objects map[string]string
	err     error
}

func (f *fakeArchive) PutTranscript(_ context.Context, applicantID, meetingID, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.objects == nil {
		f.objects = map[string]string{}
	}
	path := "transcripts/" + applicantID + "/" + meetingID + ".txt"
	f.objects[path] = text
	return path, nil
}

func sessionStore() (*persist.Store, *persist.MemoryBackend) {
	backend := persist.NewMemoryBackend()
	return persist.NewStore(backend, "session"), backend
}

func TestInProgressStoresNothing(t *testing.T) {
	src := &fakeSource{resp: &types.TranscriptResponse{Status: types.TranscriptInProgress}}
	session, backend := sessionStore()
	archive := &fakeArchive{}
	events := &outbox.Recorder{}
	svc := New(src, session, archive, events, "ws")

	out, err := svc.Fetch(context.Background(), "A1", "M1", "jd")
	require.NoError(t, err)
	assert.Equal(t, types.TranscriptInProgress, out.Status)
	assert.Empty(t, out.Transcript)
	assert.NotEmpty(t, out.Message)

	_, ok, err := backend.Get(context.Background(), constants.EntryTranscriptPrefix+"M1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, archive.objects)
	assert.Empty(t, events.Events())
}

func TestCompletedIsCachedArchivedAndServedFromCache(t *testing.T) {
	src := &fakeSource{resp: &types.TranscriptResponse{Status: types.TranscriptCompleted, Transcript: "Hello there. We discussed Go."}}
	session, _ := sessionStore()
	archive := &fakeArchive{}
	events := &outbox.Recorder{}
	svc := New(src, session, archive, events, "ws")

	out, err := svc.Fetch(context.Background(), "A1", "M1", "jd")
	require.NoError(t, err)
	assert.Equal(t, types.TranscriptCompleted, out.Status)
	assert.False(t, out.Cached)
	assert.Equal(t, "transcripts/A1/M1.txt", out.ArchivePath)
	assert.Equal(t, "Hello there. We discussed Go.", out.Summary)
	assert.Len(t, events.OfType(constants.EventTranscriptArchived), 1)

	again, err := svc.Fetch(context.Background(), "A1", "M1", "jd")
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, out.Transcript, again.Transcript)
	assert.Equal(t, 1, src.calls)
}

func TestEmptyCompletedTreatedAsNoTranscript(t *testing.T) {
	src := &fakeSource{resp: &types.TranscriptResponse{Status: types.TranscriptCompleted, Transcript: "  "}}
	session, _ := sessionStore()
	svc := New(src, session, nil, nil, "ws")

	out, err := svc.Fetch(context.Background(), "A1", "M1", "")
	require.NoError(t, err)
	assert.Equal(t, types.TranscriptNoTranscript, out.Status)
}

func TestArchiveFailureIsWarning(t *testing.T) {
	src := &fakeSource{resp: &types.TranscriptResponse{Status: types.TranscriptCompleted, Transcript: "text"}}
	session, _ := sessionStore()
	svc := New(src, session, &fakeArchive{err: errors.New("bucket missing")}, nil, "ws")

	out, err := svc.Fetch(context.Background(), "A1", "M1", "")
	require.NoError(t, err)
	assert.Equal(t, types.TranscriptCompleted, out.Status)
	assert.NotEmpty(t, out.Warning)
	assert.Empty(t, out.ArchivePath)
}

func TestFetchErrorsAndValidation(t *testing.T) {
	src := &fakeSource{err: apperr.Transport(opTranscript, context.DeadlineExceeded)}
	session, _ := sessionStore()
	svc := New(src, session, nil, nil, "ws")

	_, err := svc.Fetch(context.Background(), "A1", "", "")
	assert.Equal(t, "meetingId", apperr.FieldOf(err))
	assert.Equal(t, 0, src.calls)

	_, err = svc.Fetch(context.Background(), "A1", "M1", "")
	assert.True(t, apperr.Retryable(err))
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "short", Summarize("  short  ", 280))

	long := strings.Repeat("This is a sentence. ", 30)
	got := Summarize(long, 60)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 60)
	assert.True(t, strings.HasSuffix(got, "."))

	noStops := strings.Repeat("word ", 100)
	got = Summarize(noStops, 50)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 50)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestSummarizeTinyLimits(t *testing.T) {
	cases := []struct {
		max  int
		want string
	}{
		{-1, ""},
		{0, ""},
		{1, "t"},
		{3, "tra"},
		{4, "t..."},
	}
	for _, tc := range cases {
		assert.NotPanics(t, func() {
			assert.Equal(t, tc.want, Summarize("transcript without stops", tc.max))
		})
	}
}
