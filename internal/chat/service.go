package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"spoilshield/internal/logging"
	"spoilshield/internal/services"
	"spoilshield/internal/services/llm"
	"spoilshield/internal/store"
)

// Answerer is the model surface the chat service depends on. The concrete
// implementation is llm.Client.
type Answerer interface {
	StreamAnswer(ctx context.Context, request llm.AnswerRequest, onDelta func(string)) (string, error)
	AuditAnswer(ctx context.Context, contextText, answer string, season, episode int) (string, error)
}

// AskRequest is one question against a session.
type AskRequest struct {
	SessionID string
	Question  string
	Style     string
	Timestamp string
	// Recap supplements the session's subtitle context when the session
	// itself has accumulated nothing yet.
	Recap string
}

// AskResult is the stored outcome of one exchange.
type AskResult struct {
	Answer      string
	WasAudited  bool
	Interrupted bool
}

// Report is a user-filed spoiler leak report.
type Report struct {
	SessionID string
	Question  string
	Answer    string
}

const reportQuestionLimit = 100

// Service runs chat exchanges against the session store.
type Service struct {
	store    *store.Store
	answerer Answerer
	logger   *slog.Logger
}

// New creates a chat service.
func New(st *store.Store, answerer Answerer, logger *slog.Logger) *Service {
	return &Service{
		store:    st,
		answerer: answerer,
		logger:   logging.NewComponentLogger(logger, "chat"),
	}
}

// Ask answers one question, streaming text chunks through onDelta. The user
// question is logged before the model is called, so an interrupted exchange
// still shows what was asked. Partial content from a failed stream is kept
// with an inline interruption marker rather than discarded.
func (s *Service) Ask(ctx context.Context, request AskRequest, onDelta func(string)) (*AskResult, error) {
	question := strings.TrimSpace(request.Question)
	if question == "" {
		return nil, errors.New("question must not be empty")
	}
	if s.answerer == nil {
		return nil, errors.New("no model configured")
	}

	session, err := s.store.GetSession(ctx, request.SessionID)
	if err != nil {
		return nil, err
	}
	ctx = services.WithSessionID(ctx, session.ID)

	if _, err := s.store.AppendMessage(ctx, session.ID, store.RoleUser, question); err != nil {
		return nil, fmt.Errorf("log question: %w", err)
	}

	contextText := s.buildContext(session, request.Recap)
	answer, streamErr := s.answerer.StreamAnswer(ctx, llm.AnswerRequest{
		Question:  question,
		Context:   contextText,
		Style:     request.Style,
		ShowTitle: session.ShowTitle,
		Season:    session.Season,
		Episode:   session.Episode,
		Timestamp: request.Timestamp,
	}, onDelta)

	result := &AskResult{Answer: answer}
	if streamErr != nil {
		if answer == "" {
			return nil, streamErr
		}
		result.Interrupted = true
		result.Answer = answer + "\n\n[Answer interrupted before completion.]"
		s.logger.Warn("answer stream interrupted",
			logging.Int("partial_chars", len(answer)), logging.Error(streamErr))
	} else {
		result.Answer, result.WasAudited = s.audit(ctx, contextText, answer, session)
	}

	if _, err := s.store.AppendMessage(ctx, session.ID, store.RoleAssistant, result.Answer); err != nil {
		return nil, fmt.Errorf("log answer: %w", err)
	}
	s.syncMessageCount(ctx, session.ID)
	return result, nil
}

// audit runs the second-pass spoiler review. The audit is advisory: any
// failure degrades to the original answer, unlike recap sanitization which
// is a hard gate.
func (s *Service) audit(ctx context.Context, contextText, answer string, session *store.Session) (string, bool) {
	audited, err := s.answerer.AuditAnswer(ctx, contextText, answer, session.Season, session.Episode)
	if err != nil {
		s.logger.Warn("spoiler audit failed, keeping original answer", logging.Error(err))
		return answer, false
	}
	if audited == "" || audited == answer {
		return answer, false
	}
	s.logger.Info("spoiler audit rewrote answer",
		logging.Int("before_chars", len(answer)), logging.Int("after_chars", len(audited)))
	return audited, true
}

// ReportSpoiler records a user-filed leak report. Only the truncated
// question and content lengths are logged; the report never fails the
// caller.
func (s *Service) ReportSpoiler(ctx context.Context, report Report) string {
	id := uuid.NewString()
	question := strings.TrimSpace(report.Question)
	if len(question) > reportQuestionLimit {
		question = question[:reportQuestionLimit]
	}

	attrs := []any{
		logging.String("report_id", id),
		logging.String("question", question),
		logging.Int("answer_chars", len(report.Answer)),
	}
	if session, err := s.store.GetSession(ctx, report.SessionID); err == nil {
		attrs = append(attrs,
			logging.String("session", session.ID),
			logging.String("show", session.ShowTitle),
			logging.Int("season", session.Season),
			logging.Int("episode", session.Episode),
		)
	}
	s.logger.Warn("spoiler reported", attrs...)
	return id
}

// Refinements lists the follow-up templates the panel offers after an
// answer.
func Refinements() map[string]string {
	return map[string]string{
		"shorter":  "Can you make that shorter?",
		"detail":   "Can you go into more detail?",
		"examples": "Can you give an example from what I have seen so far?",
		"terms":    "Can you explain the terms you used?",
	}
}

func (s *Service) buildContext(session *store.Session, recap string) string {
	parts := make([]string, 0, 2)
	if recap = strings.TrimSpace(recap); recap != "" {
		parts = append(parts, "EPISODE RECAP:\n"+recap)
	}
	if captured := strings.TrimSpace(session.Context); captured != "" {
		parts = append(parts, "RECENT SUBTITLES:\n"+captured)
	}
	return strings.Join(parts, "\n\n")
}

func (s *Service) syncMessageCount(ctx context.Context, sessionID string) {
	count, err := s.store.CountMessages(ctx, sessionID)
	if err != nil {
		s.logger.Warn("message count sync failed", logging.Error(err))
		return
	}
	if err := s.store.SetSyncMessageCount(ctx, sessionID, count); err != nil {
		s.logger.Warn("message count sync failed", logging.Error(err))
	}
}
