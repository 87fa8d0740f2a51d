// Package transcript 获取会议转写。结果为三态：completed / in_progress / no_transcript，
// 只有 completed 会写入会话缓存和归档。
package transcript

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"recruit-desk/internal/apperr"
	"recruit-desk/internal/constants"
	"recruit-desk/internal/logger"
	"recruit-desk/internal/outbox"
	"recruit-desk/internal/persist"
	"recruit-desk/internal/storage"
	"recruit-desk/internal/types"
)

const (
	opTranscript   = "get-transcription"
	summaryMaxRune = 280
)

// Source 转写服务，*collaborator.Client 实现了它
type Source interface {
	FetchTranscript(ctx context.Context, applicantID, meetingID, jobDescription string) (*types.TranscriptResponse, error)
}

// Archive 转写归档，*storage.MinIO 实现了它
type Archive interface {
	PutTranscript(ctx context.Context, applicantID, meetingID, text string) (string, error)
}

// Cached 会话缓存中的转写
type Cached struct {
	Transcript string    `json:"transcript"`
	Summary    string    `json:"summary"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Outcome 一次获取的结果
type Outcome struct {
	Status      types.TranscriptStatus `json:"status"`
	Transcript  string                 `json:"transcript,omitempty"`
	Summary     string                 `json:"summary,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Cached      bool                   `json:"cached"`
	ArchivePath string                 `json:"archivePath,omitempty"`
	Warning     string                 `json:"warning,omitempty"`
}

// Service 一个工作区的转写获取
type Service struct {
	source      Source
	session     *persist.Store
	archive     Archive
	events      outbox.Writer
	workspaceID string
	now         func() time.Time
}

// New 创建服务，archive 和 events 可以为 nil
func New(source Source, session *persist.Store, archive Archive, events outbox.Writer, workspaceID string) *Service {
	return &Service{
		source:      source,
		session:     session,
		archive:     archive,
		events:      events,
		workspaceID: workspaceID,
		now:         time.Now,
	}
}

// Fetch 先读会话缓存，未命中时请求转写服务
func (s *Service) Fetch(ctx context.Context, applicantID, meetingID, jobDescription string) (Outcome, error) {
	if strings.TrimSpace(applicantID) == "" {
		return Outcome{}, apperr.Validation(opTranscript, "applicantId", "Applicant ID is required.")
	}
	if strings.TrimSpace(meetingID) == "" {
		return Outcome{}, apperr.Validation(opTranscript, "meetingId", "Meeting ID is required.")
	}
	log := logger.Ctx(ctx).With().Str("applicant_id", applicantID).Str("meeting_id", meetingID).Logger()
	key := constants.EntryTranscriptPrefix + meetingID

	var cached Cached
	if ok, err := s.session.Load(ctx, key, &cached); err != nil {
		log.Warn().Err(err).Msg("读取转写缓存失败")
	} else if ok && cached.Transcript != "" {
		return Outcome{
			Status:     types.TranscriptCompleted,
			Transcript: cached.Transcript,
			Summary:    cached.Summary,
			Cached:     true,
		}, nil
	}

	resp, err := s.source.FetchTranscript(ctx, applicantID, meetingID, jobDescription)
	if err != nil {
		return Outcome{}, err
	}

	status := resp.Status
	if status == types.TranscriptCompleted && strings.TrimSpace(resp.Transcript) == "" {
		status = types.TranscriptNoTranscript
	}
	if status != types.TranscriptCompleted {
		log.Debug().Str("status", string(status)).Msg("转写尚不可用")
		return Outcome{Status: status, Message: messageFor(status, resp.Message)}, nil
	}

	out := Outcome{
		Status:     types.TranscriptCompleted,
		Transcript: resp.Transcript,
		Summary:    Summarize(resp.Transcript, summaryMaxRune),
		Message:    resp.Message,
	}
	var warnings []string

	entry := Cached{Transcript: out.Transcript, Summary: out.Summary, FetchedAt: s.now().UTC()}
	if err := s.session.Save(ctx, key, entry); err != nil {
		log.Warn().Err(err).Msg("写入转写缓存失败")
		warnings = append(warnings, "Transcript could not be cached.")
	}

	if s.archive != nil {
		path, err := s.archive.PutTranscript(ctx, applicantID, meetingID, out.Transcript)
		if err != nil {
			log.Warn().Err(err).Msg("归档转写失败")
			warnings = append(warnings, "Transcript could not be archived.")
		} else {
			out.ArchivePath = path
			s.emitArchived(ctx, applicantID, meetingID, path, len(out.Transcript))
		}
	}

	out.Warning = strings.Join(warnings, " ")
	log.Info().Int("length", len(out.Transcript)).Msg("转写已获取")
	return out, nil
}

func (s *Service) emitArchived(ctx context.Context, applicantID, meetingID, path string, length int) {
	if s.events == nil {
		return
	}
	err := s.events.Enqueue(ctx, outbox.Event{
		AggregateID: applicantID,
		WorkspaceID: s.workspaceID,
		Type:        constants.EventTranscriptArchived,
		Data: storage.TranscriptArchivedData{
			ApplicantID: applicantID,
			MeetingID:   meetingID,
			ObjectPath:  path,
			Length:      length,
		},
	})
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("meeting_id", meetingID).Msg("写入归档事件失败")
	}
}

func messageFor(status types.TranscriptStatus, upstream string) string {
	if upstream != "" {
		return upstream
	}
	if status == types.TranscriptInProgress {
		return "Transcript is still being processed. Please check back later."
	}
	return "No transcript is available for this meeting."
}

// Summarize 取开头的完整句子，总长度不超过 max 个字符。
// 第一句就超长时按字符截断。
func Summarize(text string, max int) string {
	if max <= 0 {
		return ""
	}
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= max {
		return text
	}

	var b strings.Builder
	count := 0
	sentenceStart := 0
	runes := []rune(text)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' && r != '。' {
			continue
		}
		if i+1 < len(runes) && runes[i+1] != ' ' {
			continue
		}
		sentence := string(runes[sentenceStart : i+1])
		n := utf8.RuneCountInString(sentence)
		if count+n > max {
			break
		}
		b.WriteString(sentence)
		count += n
		sentenceStart = i + 1
	}
	if b.Len() > 0 {
		return strings.TrimSpace(b.String())
	}
	// 放不下省略号时只截断
	if max <= 3 {
		return string(runes[:max])
	}
	return strings.TrimSpace(string(runes[:max-3])) + "..."
}
