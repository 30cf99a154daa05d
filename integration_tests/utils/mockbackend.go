package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/mux"

	"github.com/cg-del/filiup/shared"
)

// MockBackend is an in-process stand-in for the FiliUp server API. It serves
// the same routes the real backend does and keeps just enough state to drive
// a full attempt lifecycle: one quiz, one attempt, one scored result.
type MockBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu        sync.Mutex
	quiz      shared.Quiz
	attempt   shared.QuizAttempt
	result    shared.QuizSubmissionResult
	submitted bool

	saves   int
	submits int
	logs    []shared.LogEntry
}

// NewMockBackend serves the given quiz and attempt until the test ends.
func NewMockBackend(t *testing.T, quiz shared.Quiz, attempt shared.QuizAttempt, result shared.QuizSubmissionResult) *MockBackend {
	t.Helper()

	b := &MockBackend{t: t, quiz: quiz, attempt: attempt, result: result}

	r := mux.NewRouter()
	r.HandleFunc("/eligibility/{quizId}", b.handleEligibility).Methods(http.MethodGet)
	r.HandleFunc("/quizzes/{quizId}", b.handleQuiz).Methods(http.MethodGet)
	r.HandleFunc("/attempts/start/{quizId}", b.handleAttempt).Methods(http.MethodPost)
	r.HandleFunc("/attempts/get-or-create/{quizId}", b.handleAttempt).Methods(http.MethodPost)
	r.HandleFunc("/attempts/with-progress/{attemptId}", b.handleAttemptByID).Methods(http.MethodGet)
	r.HandleFunc("/attempts/save-progress/{attemptId}", b.handleSaveProgress).Methods(http.MethodPost)
	r.HandleFunc("/attempts/submit-and-score/{attemptId}", b.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/attempts/log/{attemptId}", b.handleLog).Methods(http.MethodPost)
	r.HandleFunc("/attempts/logs/{attemptId}", b.handleLogs).Methods(http.MethodGet)

	b.srv = httptest.NewServer(r)
	t.Cleanup(b.srv.Close)
	return b
}

// URL is the base url the api client should be pointed at.
func (b *MockBackend) URL() string { return b.srv.URL }

// Submits reports how many scoring calls reached the backend.
func (b *MockBackend) Submits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.submits
}

// Saves reports how many progress checkpoints reached the backend.
func (b *MockBackend) Saves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

// Logs returns the audit-trail entries received so far.
func (b *MockBackend) Logs() []shared.LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]shared.LogEntry(nil), b.logs...)
}

func (b *MockBackend) handleEligibility(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	elig := shared.Eligibility{CanAttempt: true, HasInProgressAttempt: !b.submitted}
	if b.submitted {
		elig.CanAttempt = false
		elig.HasCompletedAttempt = true
		att := b.attempt
		elig.ExistingAttempt = &att
	}
	b.mu.Unlock()
	writeJSON(w, elig)
}

func (b *MockBackend) handleQuiz(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	quiz := b.quiz
	b.mu.Unlock()
	writeJSON(w, quiz)
}

func (b *MockBackend) handleAttempt(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	att := b.attempt
	b.mu.Unlock()
	writeJSON(w, att)
}

func (b *MockBackend) handleAttemptByID(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	att := b.attempt
	known := mux.Vars(r)["attemptId"] == att.AttemptID
	b.mu.Unlock()
	if !known {
		http.Error(w, `{"message":"attempt not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, att)
}

func (b *MockBackend) handleSaveProgress(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Answers              *shared.AnswerSheet `json:"answers"`
		CurrentQuestionIndex int                 `json:"currentQuestionIndex"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"message":"bad checkpoint payload"}`, http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	b.saves++
	b.attempt.Answers = body.Answers
	b.attempt.CurrentQuestionIndex = body.CurrentQuestionIndex
	b.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (b *MockBackend) handleSubmit(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.submits++
	if b.submitted {
		// the real backend scores each attempt exactly once
		http.Error(w, `{"message":"attempt already submitted"}`, http.StatusConflict)
		return
	}
	b.submitted = true
	score, max, pct := b.result.Score, b.result.MaxPossibleScore, b.result.ScorePercentage
	b.attempt.Score = &score
	b.attempt.MaxPossibleScore = &max
	b.attempt.ScorePercentage = &pct
	now := b.attempt.StartedAt
	b.attempt.CompletedAt = &now
	writeJSON(w, b.result)
}

func (b *MockBackend) handleLog(w http.ResponseWriter, r *http.Request) {
	var entry shared.LogEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		http.Error(w, `{"message":"bad log entry"}`, http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	b.logs = append(b.logs, entry)
	b.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (b *MockBackend) handleLogs(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	entries := append([]shared.LogEntry(nil), b.logs...)
	b.mu.Unlock()
	writeJSON(w, entries)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
