package shared

import "time"

// QuizAttempt is one student's server-tracked run at one quiz. While
// CompletedAt is nil the attempt is in progress and ExpiresAt (when set) must
// be checked against the clock before mutating it; once CompletedAt is set the
// attempt is read-only on the client.
type QuizAttempt struct {
	AttemptID string `json:"attemptId"`
	QuizID    string `json:"quizId"`
	StudentID string `json:"studentId"`

	StartedAt   time.Time  `json:"startedAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	Answers              *AnswerSheet `json:"answers,omitempty"`
	CurrentQuestionIndex int          `json:"currentQuestionIndex"`

	// Result fields, present only after completion.
	Score            *float64         `json:"score,omitempty"`
	MaxPossibleScore *float64         `json:"maxPossibleScore,omitempty"`
	ScorePercentage  *float64         `json:"scorePercentage,omitempty"`
	QuestionResults  []QuestionResult `json:"questionResults,omitempty"`
}

// InProgress reports whether the attempt has not been finalized yet.
func (a QuizAttempt) InProgress() bool {
	return a.CompletedAt == nil
}

// Expired reports whether the attempt deadline has passed at the given time.
// Attempts without a deadline never expire.
func (a QuizAttempt) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

// QuestionResult is the per-question correctness breakdown the server returns
// after scoring.
type QuestionResult struct {
	QuestionID     string `json:"questionId"`
	Correct        bool   `json:"correct"`
	SelectedAnswer string `json:"selectedAnswer,omitempty"`
	CorrectAnswer  string `json:"correctAnswer,omitempty"`
}

// QuizSubmissionResult is the server's scoring verdict. The client never
// computes any of these fields itself.
type QuizSubmissionResult struct {
	AttemptID        string           `json:"attemptId"`
	Score            float64          `json:"score"`
	MaxPossibleScore float64          `json:"maxPossibleScore"`
	ScorePercentage  float64          `json:"scorePercentage"`
	QuestionResults  []QuestionResult `json:"questionResults,omitempty"`
	Feedback         string           `json:"feedback,omitempty"`
	PerformanceLevel string           `json:"performanceLevel,omitempty"`
}

// Eligibility is the server's decision on whether a student may start or
// resume a quiz. The UI branches on it before ever offering "start".
type Eligibility struct {
	CanAttempt           bool         `json:"canAttempt"`
	Reason               string       `json:"reason,omitempty"`
	ExistingAttempt      *QuizAttempt `json:"existingAttempt,omitempty"`
	HasCompletedAttempt  bool         `json:"hasCompletedAttempt"`
	HasInProgressAttempt bool         `json:"hasInProgressAttempt"`
}
