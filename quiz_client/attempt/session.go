package attempt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cg-del/filiup/quiz_client/api"
	"github.com/cg-del/filiup/shared"
)

// State names one node of the attempt lifecycle.
type State string

const (
	StateUninitialized      = State("uninitialized")
	StateLoading            = State("loading")
	StateEligibleNotStarted = State("eligible_not_started")
	StateInProgress         = State("in_progress")
	StateAlreadyCompleted   = State("already_completed")
	StateSubmitting         = State("submitting")
	StateCompleted          = State("completed")
	StateSubmitError        = State("submit_error")
)

// AttemptAPI is the slice of the remote client the session needs. *api.Client
// satisfies it; tests use a fake.
type AttemptAPI interface {
	CheckEligibility(ctx context.Context, quizID string) (shared.Eligibility, error)
	GetQuiz(ctx context.Context, quizID string) (shared.Quiz, error)
	StartAttempt(ctx context.Context, quizID string) (shared.QuizAttempt, error)
	GetOrCreateAttempt(ctx context.Context, quizID string) (shared.QuizAttempt, error)
	GetAttemptWithProgress(ctx context.Context, attemptID string) (shared.QuizAttempt, error)
	SaveProgress(ctx context.Context, attemptID string, answers *shared.AnswerSheet, currentIndex int) error
	SubmitAndScore(ctx context.Context, attemptID string, answers *shared.AnswerSheet, timeTakenSeconds int) (shared.QuizSubmissionResult, error)
	LogAction(ctx context.Context, attemptID string, entry shared.LogEntry) error
}

// AlertFunc surfaces a non-blocking notice (e.g. a time warning) to the UI.
type AlertFunc func(message string, minutesRemaining int)

// Session is the attempt view-model: the single place where user intent,
// server-authoritative attempt state and push notifications are reconciled.
// The presentation layer only ever sees Snapshot() and the intent methods.
type Session struct {
	client AttemptAPI
	clock  Clock
	log    *slog.Logger
	saver  *Debouncer

	onAlert AlertFunc

	mu        sync.Mutex
	state     State
	quizID    string
	quiz      shared.Quiz
	attemptID string
	startedAt time.Time
	expiresAt *time.Time
	answers   *shared.AnswerSheet
	index     int
	result    *shared.QuizSubmissionResult
	lastErr   error
	closed    bool
}

// saveRequestTimeout bounds the debounced checkpoint call, which runs outside
// any caller context.
const saveRequestTimeout = 5 * time.Second

// NewSession builds an idle session. saveInterval is the debounce window for
// progress checkpoints.
func NewSession(client AttemptAPI, clock Clock, saveInterval time.Duration, log *slog.Logger) *Session {
	return &Session{
		client:  client,
		clock:   clock,
		log:     log,
		saver:   NewDebouncer(saveInterval),
		state:   StateUninitialized,
		answers: shared.NewAnswerSheet(),
	}
}

// SetAlertFunc registers the UI callback for non-blocking notices.
func (s *Session) SetAlertFunc(f AlertFunc) {
	s.mu.Lock()
	s.onAlert = f
	s.mu.Unlock()
}

// Load checks eligibility and hydrates the session. An existing completed
// attempt routes straight to AlreadyCompleted without ever calling
// start/resume; an in-progress attempt is resumed with its saved answers,
// index and expiry; otherwise the session is ready for Start.
func (s *Session) Load(ctx context.Context, quizID string) error {
	s.mu.Lock()
	if s.state != StateUninitialized {
		s.mu.Unlock()
		return fmt.Errorf("load: session already in state %s", s.state)
	}
	s.state = StateLoading
	s.quizID = quizID
	s.mu.Unlock()

	elig, err := s.client.CheckEligibility(ctx, quizID)
	if err != nil {
		s.failLoad(err)
		return err
	}

	quiz, err := s.client.GetQuiz(ctx, quizID)
	if err != nil {
		s.failLoad(err)
		return err
	}

	switch {
	case !elig.CanAttempt && elig.HasCompletedAttempt:
		s.mu.Lock()
		s.quiz = quiz
		s.state = StateAlreadyCompleted
		if elig.ExistingAttempt != nil {
			s.attemptID = elig.ExistingAttempt.AttemptID
			s.result = resultFromAttempt(*elig.ExistingAttempt)
		}
		s.mu.Unlock()
		return nil

	case elig.HasInProgressAttempt:
		att, err := s.client.GetOrCreateAttempt(ctx, quizID)
		if err != nil {
			s.failLoad(err)
			return err
		}
		s.hydrate(quiz, att)
		return nil

	case elig.CanAttempt:
		s.mu.Lock()
		s.quiz = quiz
		s.state = StateEligibleNotStarted
		s.mu.Unlock()
		return nil

	default:
		err := fmt.Errorf("quiz not available: %s", elig.Reason)
		s.failLoad(err)
		return err
	}
}

// Start begins a fresh attempt. Valid only from EligibleNotStarted.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateEligibleNotStarted {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("start: not eligible in state %s", st)
	}
	quizID := s.quizID
	quiz := s.quiz
	s.mu.Unlock()

	att, err := s.client.StartAttempt(ctx, quizID)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		return err
	}
	s.hydrate(quiz, att)
	return nil
}

func (s *Session) hydrate(quiz shared.Quiz, att shared.QuizAttempt) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.quiz = quiz
	s.attemptID = att.AttemptID
	s.startedAt = att.StartedAt
	s.expiresAt = att.ExpiresAt
	s.index = clamp(att.CurrentQuestionIndex, 0, maxIndex(quiz))
	if att.Answers != nil {
		s.answers = att.Answers.Clone()
	} else {
		s.answers = shared.NewAnswerSheet()
	}
	if att.InProgress() {
		s.state = StateInProgress
	} else {
		s.state = StateAlreadyCompleted
		s.result = resultFromAttempt(att)
	}
}

func (s *Session) failLoad(err error) {
	s.mu.Lock()
	s.state = StateUninitialized
	s.lastErr = err
	s.mu.Unlock()
}

// SelectAnswer records the student's choice for a question in memory only and
// arms the debounced progress checkpoint. Mutations are refused once the
// attempt is no longer in progress or its deadline has passed.
func (s *Session) SelectAnswer(questionID, answer string) {
	s.mu.Lock()
	if s.state != StateInProgress || s.expired() {
		s.mu.Unlock()
		return
	}
	s.answers.Set(questionID, answer)
	s.mu.Unlock()

	s.saver.Trigger(s.checkpoint)
}

// Advance moves to the next question, clamped at the last one. A pending
// checkpoint is flushed before navigating away.
func (s *Session) Advance() {
	s.move(+1)
}

// Retreat moves to the previous question, clamped at the first one. A pending
// checkpoint is flushed before navigating away.
func (s *Session) Retreat() {
	s.move(-1)
}

func (s *Session) move(delta int) {
	s.saver.Flush()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return
	}
	s.index = clamp(s.index+delta, 0, maxIndex(s.quiz))
}

// checkpoint flushes the current answers and index to the server. Best
// effort: a failed checkpoint is logged and retried naturally on the next
// trigger.
func (s *Session) checkpoint() {
	s.mu.Lock()
	if s.closed || s.state != StateInProgress {
		s.mu.Unlock()
		return
	}
	attemptID := s.attemptID
	answers := s.answers.Clone()
	index := s.index
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), saveRequestTimeout)
	defer cancel()
	if err := s.client.SaveProgress(ctx, attemptID, answers, index); err != nil {
		s.log.Warn("progress checkpoint failed", "attemptId", attemptID, "err", err)
	}
}

// TimeRemaining derives the time left on the attempt clock. The second return
// is false when the attempt has no deadline. Never negative.
func (s *Session) TimeRemaining() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expiresAt == nil {
		return 0, false
	}
	left := s.expiresAt.Sub(s.clock.Now())
	if left < 0 {
		left = 0
	}
	return left, true
}

// HandleNotification reconciles one server push into the session. A forced
// timeout for the active attempt freezes input and submits whatever answers
// are held, without user interaction; one for a different attempt is ignored.
// A re-pushed timeout after a failed submit retries from SubmitError, where
// the answers are still held. A time warning only surfaces an alert and
// mutates nothing.
func (s *Session) HandleNotification(msg shared.NotificationMessage) {
	switch msg.Type {
	case shared.NotificationForcedTimeout:
		s.mu.Lock()
		match := msg.AttemptID == s.attemptID &&
			(s.state == StateInProgress || s.state == StateSubmitError)
		s.mu.Unlock()
		if !match {
			return
		}
		s.log.Info("forced timeout received, submitting", "attemptId", msg.AttemptID)
		ctx, cancel := context.WithTimeout(context.Background(), saveRequestTimeout)
		defer cancel()
		if err := s.Submit(ctx); err != nil {
			s.log.Error("forced-timeout submit failed", "attemptId", msg.AttemptID, "err", err)
		}

	case shared.NotificationTimeWarning:
		s.mu.Lock()
		alert := s.onAlert
		active := msg.AttemptID == "" || msg.AttemptID == s.attemptID
		s.mu.Unlock()
		if alert != nil && active {
			alert(msg.Message, msg.MinutesRemaining)
		}

	case shared.NotificationQuizUpdate:
		s.log.Info("quiz update received", "message", msg.Message)
	}
}

// Submit finalizes the attempt with the server and transitions to Completed
// on success. A duplicate call while a submit is in flight, or after
// completion, resolves quietly: there is only ever one terminal result. On
// failure the answers are kept so the user (or the forced-timeout path) can
// retry.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateCompleted, StateAlreadyCompleted, StateSubmitting:
		// already done or racing with another submit; the first one wins
		s.mu.Unlock()
		return nil
	case StateInProgress, StateSubmitError:
	default:
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("submit: nothing to submit in state %s", st)
	}
	s.state = StateSubmitting
	attemptID := s.attemptID
	answers := s.answers.Clone()
	elapsed := int(s.clock.Now().Sub(s.startedAt).Seconds())
	s.mu.Unlock()

	s.saver.Stop()

	result, err := s.client.SubmitAndScore(ctx, attemptID, answers, elapsed)
	if err != nil {
		if api.IsConflict(err) {
			// the server likely scored this attempt already (racing submit or
			// server-side timeout); fetch the authoritative state
			if res, ok := s.fetchScoredResult(ctx, attemptID); ok {
				s.complete(res)
				return nil
			}
		}
		s.mu.Lock()
		if !s.closed {
			s.state = StateSubmitError
			s.lastErr = err
		}
		s.mu.Unlock()
		return err
	}

	s.complete(result)
	return nil
}

// fetchScoredResult rehydrates the attempt after a submit conflict and, when
// the server has already scored it, converts it into a result.
func (s *Session) fetchScoredResult(ctx context.Context, attemptID string) (shared.QuizSubmissionResult, bool) {
	att, err := s.client.GetAttemptWithProgress(ctx, attemptID)
	if err != nil || att.InProgress() {
		return shared.QuizSubmissionResult{}, false
	}
	res := resultFromAttempt(att)
	if res == nil {
		return shared.QuizSubmissionResult{}, false
	}
	return *res, true
}

func (s *Session) complete(result shared.QuizSubmissionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state == StateCompleted {
		return
	}
	s.state = StateCompleted
	s.result = &result
	s.lastErr = nil
}

// LogSuspicious ships one audit-trail entry for the active attempt, best
// effort. It never blocks or fails the quiz flow.
func (s *Session) LogSuspicious(action, description string, severity shared.Severity, questionIndex *int) {
	s.mu.Lock()
	attemptID := s.attemptID
	closed := s.closed
	now := s.clock.Now()
	s.mu.Unlock()
	if closed || attemptID == "" {
		return
	}

	entry := shared.LogEntry{
		ID:            uuid.NewString(),
		Timestamp:     now.UTC(),
		Action:        action,
		Description:   description,
		Severity:      severity,
		QuestionIndex: questionIndex,
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveRequestTimeout)
	defer cancel()
	// LogAction already warns on failure; nothing propagates
	_ = s.client.LogAction(ctx, attemptID, entry)
}

// Close detaches the session from its owner. Late async completions after
// Close are dropped; the attempt itself lives on server-side.
func (s *Session) Close() {
	s.saver.Stop()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Session) expired() bool {
	return s.expiresAt != nil && s.clock.Now().After(*s.expiresAt)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxIndex(q shared.Quiz) int {
	if q.Len() == 0 {
		return 0
	}
	return q.Len() - 1
}

// resultFromAttempt builds a result view from a scored attempt, or nil when
// the attempt carries no score. Every figure is the server's; nothing is
// derived client-side.
func resultFromAttempt(att shared.QuizAttempt) *shared.QuizSubmissionResult {
	if att.Score == nil || att.MaxPossibleScore == nil {
		return nil
	}
	res := shared.QuizSubmissionResult{
		AttemptID:        att.AttemptID,
		Score:            *att.Score,
		MaxPossibleScore: *att.MaxPossibleScore,
		QuestionResults:  att.QuestionResults,
	}
	if att.ScorePercentage != nil {
		res.ScorePercentage = *att.ScorePercentage
	}
	return &res
}
