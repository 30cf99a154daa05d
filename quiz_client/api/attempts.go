package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/cg-del/filiup/shared"
)

// saveProgressRequest is the progress checkpoint payload. Answers keep their
// insertion order on the wire.
type saveProgressRequest struct {
	Answers              *shared.AnswerSheet `json:"answers"`
	CurrentQuestionIndex int                 `json:"currentQuestionIndex"`
}

// submitRequest finalizes an attempt for scoring.
type submitRequest struct {
	Answers          *shared.AnswerSheet `json:"answers"`
	TimeTakenSeconds int                 `json:"timeTakenSeconds"`
}

// StartAttempt begins a fresh attempt for the quiz. Whether a truly new
// attempt is created is the server's call; the client only observes the result.
func (c *Client) StartAttempt(ctx context.Context, quizID string) (shared.QuizAttempt, error) {
	var attempt shared.QuizAttempt
	err := c.do(ctx, http.MethodPost, "/attempts/start/"+url.PathEscape(quizID), nil, &attempt)
	return attempt, err
}

// GetOrCreateAttempt starts a new attempt or returns the existing in-progress
// one, at the server's discretion.
func (c *Client) GetOrCreateAttempt(ctx context.Context, quizID string) (shared.QuizAttempt, error) {
	var attempt shared.QuizAttempt
	err := c.do(ctx, http.MethodPost, "/attempts/get-or-create/"+url.PathEscape(quizID), nil, &attempt)
	return attempt, err
}

// ResumeAttempt fetches the resumable attempt for the quiz, if any.
// A missing attempt is a soft miss (found=false, nil error), not a failure.
func (c *Client) ResumeAttempt(ctx context.Context, quizID string) (shared.QuizAttempt, bool, error) {
	var attempt shared.QuizAttempt
	err := c.do(ctx, http.MethodGet, "/attempts/resume/"+url.PathEscape(quizID), nil, &attempt)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return shared.QuizAttempt{}, false, nil
		}
		return shared.QuizAttempt{}, false, err
	}
	return attempt, true, nil
}

// GetAttempt fetches an attempt by id.
func (c *Client) GetAttempt(ctx context.Context, attemptID string) (shared.QuizAttempt, error) {
	var attempt shared.QuizAttempt
	err := c.do(ctx, http.MethodGet, "/attempts/"+url.PathEscape(attemptID), nil, &attempt)
	return attempt, err
}

// GetAttemptWithProgress fetches an attempt together with its saved answers
// and question index, used to rehydrate after a reload.
func (c *Client) GetAttemptWithProgress(ctx context.Context, attemptID string) (shared.QuizAttempt, error) {
	var attempt shared.QuizAttempt
	err := c.do(ctx, http.MethodGet, "/attempts/with-progress/"+url.PathEscape(attemptID), nil, &attempt)
	return attempt, err
}

// SaveProgress flushes a progress checkpoint. Callers may invoke it
// redundantly; the server tolerates repeats.
func (c *Client) SaveProgress(ctx context.Context, attemptID string, answers *shared.AnswerSheet, currentIndex int) error {
	body := saveProgressRequest{Answers: answers, CurrentQuestionIndex: currentIndex}
	return c.do(ctx, http.MethodPost, "/attempts/save-progress/"+url.PathEscape(attemptID), body, nil)
}

// SubmitAndScore finalizes the attempt and returns the server's verdict.
// This is the sole authority for correctness.
func (c *Client) SubmitAndScore(ctx context.Context, attemptID string, answers *shared.AnswerSheet, timeTakenSeconds int) (shared.QuizSubmissionResult, error) {
	body := submitRequest{Answers: answers, TimeTakenSeconds: timeTakenSeconds}
	var result shared.QuizSubmissionResult
	err := c.do(ctx, http.MethodPost, "/attempts/submit-and-score/"+url.PathEscape(attemptID), body, &result)
	return result, err
}

// CheckEligibility asks the server whether the student may attempt the quiz.
// Must be called before offering the "start quiz" action.
func (c *Client) CheckEligibility(ctx context.Context, quizID string) (shared.Eligibility, error) {
	var elig shared.Eligibility
	err := c.do(ctx, http.MethodGet, "/eligibility/"+url.PathEscape(quizID), nil, &elig)
	return elig, err
}

// GetQuiz fetches the quiz content (questions and choices) for display.
func (c *Client) GetQuiz(ctx context.Context, quizID string) (shared.Quiz, error) {
	var quiz shared.Quiz
	err := c.do(ctx, http.MethodGet, "/quizzes/"+url.PathEscape(quizID), nil, &quiz)
	return quiz, err
}

// LogAction appends one entry to the attempt's audit trail. Callers treat it
// as fire-and-forget: a failure is logged and swallowed, never blocks the
// quiz flow.
func (c *Client) LogAction(ctx context.Context, attemptID string, entry shared.LogEntry) error {
	err := c.do(ctx, http.MethodPost, "/attempts/log/"+url.PathEscape(attemptID), entry, nil)
	if err != nil {
		c.log.Warn("log action failed", "attemptId", attemptID, "action", entry.Action, "err", err)
	}
	return err
}

// GetLogs fetches the audit trail of an attempt for the teacher-facing viewer.
func (c *Client) GetLogs(ctx context.Context, attemptID string) ([]shared.LogEntry, error) {
	var entries []shared.LogEntry
	err := c.do(ctx, http.MethodGet, "/attempts/logs/"+url.PathEscape(attemptID), nil, &entries)
	return entries, err
}
