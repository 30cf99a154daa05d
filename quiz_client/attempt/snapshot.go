package attempt

import (
	"time"

	"github.com/cg-del/filiup/shared"
)

// Snapshot is the read-only view the presentation layer renders from. It is a
// copy; mutating it has no effect on the session.
type Snapshot struct {
	State State

	QuizTitle     string
	QuestionIndex int
	QuestionCount int
	Question      shared.Question

	Answers        map[string]string // questionId -> selected answer
	CurrentAnswer  string            // answer for the current question, "" if none
	AnsweredCount  int
	TimeRemaining  time.Duration
	HasDeadline    bool
	Result         *shared.QuizSubmissionResult
	LastErrMessage string
}

// Snapshot returns the current renderable state.
func (s *Session) Snapshot() Snapshot {
	remaining, hasDeadline := s.TimeRemaining()

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:         s.state,
		QuizTitle:     s.quiz.Title,
		QuestionIndex: s.index,
		QuestionCount: s.quiz.Len(),
		Question:      s.quiz.GetQuestion(s.index),
		Answers:       s.answers.Map(),
		AnsweredCount: s.answers.Len(),
		TimeRemaining: remaining,
		HasDeadline:   hasDeadline,
	}
	if cur, ok := s.answers.Get(snap.Question.QuestionID); ok {
		snap.CurrentAnswer = cur
	}
	if s.result != nil {
		r := *s.result
		snap.Result = &r
	}
	if s.lastErr != nil {
		snap.LastErrMessage = s.lastErr.Error()
	}
	return snap
}
