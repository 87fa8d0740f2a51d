package collaborator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"recruit-desk/internal/apperr"
	"recruit-desk/internal/config"
	"recruit-desk/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Config{}
	cfg.Collaborators.BaseURL = srv.URL + "/api"
	cfg.ApplyDefaults()
	return New(cfg.Collaborators)
}

func TestMatchParsesTopProfiles(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/match", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Senior Go engineer", body["jobDescription"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"topProfiles":[{"title":"Asha K - Backend","snippet":"Go, Kafka","link":"https://in.example/asha","score":0.92,"platform":"linkedin"}]}`)
	})

	profiles, err := client.Match(context.Background(), "Senior Go engineer")
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "https://in.example/asha", profiles[0].Link)
	assert.InDelta(t, 0.92, profiles[0].Score, 1e-9)
}

func TestMatchServerErrorUsesBackendMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"search index unavailable"}`)
	})

	_, err := client.Match(context.Background(), "jd")
	require.Error(t, err)
	assert.Equal(t, apperr.KindCollaborator, apperr.KindOf(err))
	assert.Equal(t, "search index unavailable", apperr.UserMessage(err))
	assert.Equal(t, http.StatusInternalServerError, apperr.HTTPStatus(err))
}

func TestScheduleMeetingBadRequestSurfacedVerbatim(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"Organizer mailbox not found"}`)
	})

	_, err := client.ScheduleMeeting(context.Background(), types.MeetingRequest{OrganizerEmail: "host@x.io"})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))
	assert.Equal(t, "Organizer mailbox not found", apperr.UserMessage(err))
}

func TestScheduleMeetingSuccess(t *testing.T) {
	var got types.MeetingRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/schedule-meeting", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"id":"M1","success":true,"onlineMeeting":{"joinUrl":"https://meet/1"}}`)
	})

	resp, err := client.ScheduleMeeting(context.Background(), types.MeetingRequest{
		OrganizerEmail:  "host@x.io",
		Subject:         "Interview",
		Attendees:       []string{"host@x.io", "c@y.io"},
		StartTime:       "2025-03-01T10:00:00",
		DurationMinutes: 60,
	})
	require.NoError(t, err)
	assert.Equal(t, "M1", resp.ID)
	assert.True(t, resp.Success)
	assert.Equal(t, "https://meet/1", resp.MeetingLink)
	assert.Equal(t, []string{"host@x.io", "c@y.io"}, got.Attendees)
}

func TestScheduleMeetingUnsuccessfulBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":false,"error":"calendar busy"}`)
	})

	_, err := client.ScheduleMeeting(context.Background(), types.MeetingRequest{})
	require.Error(t, err)
	assert.Equal(t, "calendar busy", apperr.UserMessage(err))
}

func TestGenerateQuestionsStringAndStructured(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"jobDescription": "jd", "profileSummary": "summary"}, body)
		if calls.Add(1) == 1 {
			_, _ = io.WriteString(w, `{"questions":"1. Explain goroutines"}`)
			return
		}
		_, _ = io.WriteString(w, `{"questions":[{"question":"Explain channels"},"Describe context cancellation"]}`)
	})

	q, err := client.GenerateQuestions(context.Background(), "jd", "summary")
	require.NoError(t, err)
	assert.Equal(t, "1. Explain goroutines", q)

	q, err = client.GenerateQuestions(context.Background(), "jd", "summary")
	require.NoError(t, err)
	assert.Equal(t, "Explain channels\nDescribe context cancellation", q)
}

func TestGenerateQuestionsOmitsEmptyProfileSummary(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotContains(t, body, "profileSummary")
		_, _ = io.WriteString(w, `{"questions":"Q"}`)
	})

	_, err := client.GenerateQuestions(context.Background(), "jd", "")
	require.NoError(t, err)
}

func TestApplicantTracking(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/applicant-tracking/A1", r.URL.Path)
		_, _ = io.WriteString(w, `{"meetingStatus":"scheduled","meetingInfo":[{"meetingId":"M1","subject":"Interview","startTime":"2025-03-01T10:00:00+05:30"}],"transcription":null,"aiAnalysis":null}`)
	})

	rec, err := client.ApplicantTracking(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, types.MeetingStatusScheduled, rec.MeetingStatus)
	require.Len(t, rec.MeetingInfo, 1)
	assert.Equal(t, "M1", rec.MeetingInfo[0].MeetingID)
	assert.Nil(t, rec.AIAnalysis)
}

func TestApplicantTrackingSingleMeetingObject(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"meetingStatus":"completed","meetingInfo":{"meetingId":"M9"}}`)
	})

	rec, err := client.ApplicantTracking(context.Background(), "A1")
	require.NoError(t, err)
	require.Len(t, rec.MeetingInfo, 1)
	assert.Equal(t, "M9", rec.MeetingInfo[0].MeetingID)
}

func TestApplicantTrackingNon200(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.ApplicantTracking(context.Background(), "A1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindCollaborator, apperr.KindOf(err))
}

func TestTimeoutIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	cfg := config.Config{}
	cfg.Collaborators.BaseURL = srv.URL
	cfg.ApplyDefaults()
	client := New(cfg.Collaborators)
	client.http.SetTimeout(20 * time.Millisecond)

	_, err := client.ApplicantTracking(context.Background(), "A1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrTransport))
	assert.True(t, apperr.Retryable(err))
}

func TestFetchTranscriptStates(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "A1", r.URL.Query().Get("applicant_id"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"id": "M1", "jobDescription": "jd"}, body)
		_, _ = io.WriteString(w, `{"status":"in_progress","message":"Processing"}`)
	})

	out, err := client.FetchTranscript(context.Background(), "A1", "M1", "jd")
	require.NoError(t, err)
	assert.Equal(t, types.TranscriptInProgress, out.Status)
	assert.Empty(t, out.Transcript)
}

func TestFetchTranscriptUnknownStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"queued"}`)
	})

	_, err := client.FetchTranscript(context.Background(), "A1", "M1", "")
	require.Error(t, err)
}

func TestCurrentUserWithoutSession(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	user, err := client.CurrentUser(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestCurrentUserForwardsCookie(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sid=abc", r.Header.Get("Cookie"))
		_, _ = io.WriteString(w, `{"user":{"name":"Recruiter","email":"r@x.io"}}`)
	})

	user, err := client.CurrentUser(context.Background(), "sid=abc")
	require.NoError(t, err)
	assert.Equal(t, "Recruiter", user["name"])
}

func TestErrorMessageExtraction(t *testing.T) {
	assert.Equal(t, "boom", errorMessage([]byte(`{"error":{"message":"boom"}}`)))
	assert.Equal(t, "plain failure", errorMessage([]byte("plain failure")))
	assert.Equal(t, "", errorMessage([]byte("<html>bad gateway</html>")))
	assert.Equal(t, "", errorMessage([]byte(`{"code":17}`)))
}
