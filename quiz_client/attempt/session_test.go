package attempt

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cg-del/filiup/quiz_client/api"
	"github.com/cg-del/filiup/shared"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeAPI struct {
	mu sync.Mutex

	elig    shared.Eligibility
	quiz    shared.Quiz
	attempt shared.QuizAttempt

	submitResult shared.QuizSubmissionResult
	submitErr    error
	submitDelay  time.Duration

	refetchAttempt *shared.QuizAttempt

	eligCalls, startCalls, getOrCreateCalls, submitCalls, saveCalls int

	savedAnswers     map[string]string
	savedIndex       int
	submittedAnswers map[string]string
	submittedIn      int // timeTakenSeconds of the last submit
	logged           []shared.LogEntry
}

func (f *fakeAPI) CheckEligibility(ctx context.Context, quizID string) (shared.Eligibility, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eligCalls++
	return f.elig, nil
}

func (f *fakeAPI) GetQuiz(ctx context.Context, quizID string) (shared.Quiz, error) {
	return f.quiz, nil
}

func (f *fakeAPI) StartAttempt(ctx context.Context, quizID string) (shared.QuizAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	return f.attempt, nil
}

func (f *fakeAPI) GetOrCreateAttempt(ctx context.Context, quizID string) (shared.QuizAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getOrCreateCalls++
	return f.attempt, nil
}

func (f *fakeAPI) GetAttemptWithProgress(ctx context.Context, attemptID string) (shared.QuizAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refetchAttempt != nil {
		return *f.refetchAttempt, nil
	}
	return f.attempt, nil
}

func (f *fakeAPI) SaveProgress(ctx context.Context, attemptID string, answers *shared.AnswerSheet, currentIndex int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	f.savedAnswers = answers.Map()
	f.savedIndex = currentIndex
	return nil
}

func (f *fakeAPI) SubmitAndScore(ctx context.Context, attemptID string, answers *shared.AnswerSheet, timeTakenSeconds int) (shared.QuizSubmissionResult, error) {
	f.mu.Lock()
	f.submitCalls++
	f.submittedIn = timeTakenSeconds
	f.submittedAnswers = answers.Map()
	delay, err, result := f.submitDelay, f.submitErr, f.submitResult
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return shared.QuizSubmissionResult{}, err
	}
	return result, nil
}

func (f *fakeAPI) LogAction(ctx context.Context, attemptID string, entry shared.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logged = append(f.logged, entry)
	return nil
}

func (f *fakeAPI) counts() (elig, start, getOrCreate, submit, save int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eligCalls, f.startCalls, f.getOrCreateCalls, f.submitCalls, f.saveCalls
}

func testQuiz(n int) shared.Quiz {
	quiz := shared.Quiz{QuizID: "quiz-1", Title: "Pagsusulit"}
	letters := []string{"A", "B", "C", "D"}
	for i := 0; i < n; i++ {
		q := shared.Question{QuestionID: "q" + string(rune('1'+i)), Text: "tanong"}
		for _, l := range letters {
			q.Choices = append(q.Choices, shared.Choice{Letter: l, Text: l})
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	return quiz
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newInProgressSession loads a session into InProgress over the given fake.
func newInProgressSession(t *testing.T, f *fakeAPI, clock Clock, saveInterval time.Duration) *Session {
	t.Helper()
	if f.elig == (shared.Eligibility{}) {
		f.elig = shared.Eligibility{CanAttempt: true, HasInProgressAttempt: true}
	}
	s := NewSession(f, clock, saveInterval, testLogger())
	require.NoError(t, s.Load(context.Background(), "quiz-1"))
	require.Equal(t, StateInProgress, s.Snapshot().State)
	return s
}

func TestSelectAnswerLastWriteWins(t *testing.T) {
	clock := newFakeClock()
	f := &fakeAPI{
		quiz:    testQuiz(3),
		attempt: shared.QuizAttempt{AttemptID: "att-1", QuizID: "quiz-1", StartedAt: clock.Now()},
	}
	s := newInProgressSession(t, f, clock, time.Hour)
	defer s.Close()

	s.SelectAnswer("q1", "A")
	s.Advance()
	s.SelectAnswer("q2", "B")
	s.Retreat()
	s.SelectAnswer("q1", "D") // overwrite
	s.Advance()
	s.Advance()
	s.SelectAnswer("q3", "C")

	require.Equal(t, map[string]string{"q1": "D", "q2": "B", "q3": "C"}, s.Snapshot().Answers)
}

func TestNavigationClamps(t *testing.T) {
	clock := newFakeClock()
	f := &fakeAPI{
		quiz:    testQuiz(5),
		attempt: shared.QuizAttempt{AttemptID: "att-1", StartedAt: clock.Now()},
	}
	s := newInProgressSession(t, f, clock, time.Hour)
	defer s.Close()

	require.Equal(t, 0, s.Snapshot().QuestionIndex)
	s.Retreat()
	require.Equal(t, 0, s.Snapshot().QuestionIndex, "retreat at the first question stays put")

	for i := 0; i < 10; i++ {
		s.Advance()
	}
	require.Equal(t, 4, s.Snapshot().QuestionIndex, "advance clamps at the last question")
}

func TestTimeRemainingDerivedAndFloored(t *testing.T) {
	clock := newFakeClock()
	expires := clock.Now().Add(60 * time.Second)
	f := &fakeAPI{
		quiz:    testQuiz(3),
		attempt: shared.QuizAttempt{AttemptID: "att-1", StartedAt: clock.Now(), ExpiresAt: &expires},
	}
	s := newInProgressSession(t, f, clock, time.Hour)
	defer s.Close()

	first, hasDeadline := s.TimeRemaining()
	require.True(t, hasDeadline)
	require.Greater(t, first, time.Duration(0))
	require.LessOrEqual(t, first, 60*time.Second)

	clock.Advance(30 * time.Second)
	second, _ := s.TimeRemaining()
	require.LessOrEqual(t, second, first, "time remaining never increases")

	clock.Advance(40 * time.Second) // 70s total, past the deadline
	third, hasDeadline := s.TimeRemaining()
	require.True(t, hasDeadline)
	require.Equal(t, time.Duration(0), third, "floored at zero, never negative")
}

func TestNoDeadlineMeansNoCountdown(t *testing.T) {
	clock := newFakeClock()
	f := &fakeAPI{
		quiz:    testQuiz(3),
		attempt: shared.QuizAttempt{AttemptID: "att-1", StartedAt: clock.Now()},
	}
	s := newInProgressSession(t, f, clock, time.Hour)
	defer s.Close()

	_, hasDeadline := s.TimeRemaining()
	require.False(t, hasDeadline)
}

func TestForcedTimeoutAutoSubmits(t *testing.T) {
	clock := newFakeClock()
	f := &fakeAPI{
		quiz:         testQuiz(3),
		attempt:      shared.QuizAttempt{AttemptID: "att-1", StartedAt: clock.Now()},
		submitResult: shared.QuizSubmissionResult{AttemptID: "att-1", Score: 1, MaxPossibleScore: 3},
	}
	s := newInProgressSession(t, f, clock, time.Hour)
	defer s.Close()

	s.SelectAnswer("q1", "A")

	// a forced timeout for some other attempt is ignored
	s.HandleNotification(shared.NotificationMessage{
		Type:      shared.NotificationForcedTimeout,
		AttemptID: "att-other",
	})
	require.Equal(t, StateInProgress, s.Snapshot().State)
	_, _, _, submits, _ := f.counts()
	require.Equal(t, 0, submits)

	// the matching one submits without user interaction
	s.HandleNotification(shared.NotificationMessage{
		Type:      shared.NotificationForcedTimeout,
		AttemptID: "att-1",
	})
	require.Equal(t, StateCompleted, s.Snapshot().State)
	_, _, _, submits, _ = f.counts()
	require.Equal(t, 1, submits)
}

func TestForcedTimeoutRetriesAfterFailedSubmit(t *testing.T) {
	clock := newFakeClock()
	f := &fakeAPI{
		quiz:      testQuiz(3),
		attempt:   shared.QuizAttempt{AttemptID: "att-1", StartedAt: clock.Now()},
		submitErr: &api.APIError{Kind: api.KindServer, StatusCode: 500, Message: "boom"},
	}
	s := newInProgressSession(t, f, clock, time.Hour)
	defer s.Close()

	s.SelectAnswer("q1", "A")

	// first forced timeout hits a failing backend
	s.HandleNotification(shared.NotificationMessage{
		Type:      shared.NotificationForcedTimeout,
		AttemptID: "att-1",
	})
	require.Equal(t, StateSubmitError, s.Snapshot().State)

	// the server re-pushes the timeout once it recovers; the retry must go
	// through without any user action, answers still held
	f.mu.Lock()
	f.submitErr = nil
	f.submitResult = shared.QuizSubmissionResult{AttemptID: "att-1", Score: 1, MaxPossibleScore: 3}
	f.mu.Unlock()

	s.HandleNotification(shared.NotificationMessage{
		Type:      shared.NotificationForcedTimeout,
		AttemptID: "att-1",
	})
	require.Equal(t, StateCompleted, s.Snapshot().State)

	_, _, _, submits, _ := f.counts()
	require.Equal(t, 2, submits)
	f.mu.Lock()
	require.Equal(t, map[string]string{"q1": "A"}, f.submittedAnswers)
	f.mu.Unlock()
}

func TestTimeWarningAlertsWithoutMutating(t *testing.T) {
	clock := newFakeClock()
	f := &fakeAPI{
		quiz:    testQuiz(3),
		attempt: shared.QuizAttempt{AttemptID: "att-1", StartedAt: clock.Now()},
	}
	s := newInProgressSession(t, f, clock, time.Hour)
	defer s.Close()

	var gotMessage string
	var gotMinutes int
	s.SetAlertFunc(func(message string, minutesRemaining int) {
		gotMessage = message
		gotMinutes = minutesRemaining
	})

	s.SelectAnswer("q1", "A")
	before := s.Snapshot()

	s.HandleNotification(shared.NotificationMessage{
		Type:             shared.NotificationTimeWarning,
		AttemptID:        "att-1",
		Message:          "5 minutes left",
		MinutesRemaining: 5,
	})

	require.Equal(t, "5 minutes left", gotMessage)
	require.Equal(t, 5, gotMinutes)

	after := s.Snapshot()
	require.Equal(t, before.State, after.State)
	require.Equal(t, before.Answers, after.Answers)
}

func TestDuplicateSubmitYieldsOneResult(t *testing.T) {
	clock := newFakeClock()
	f := &fakeAPI{
		quiz:         testQuiz(3),
		attempt:      shared.QuizAttempt{AttemptID: "att-1", StartedAt: clock.Now()},
		submitResult: shared.QuizSubmissionResult{AttemptID: "att-1", Score: 3, MaxPossibleScore: 3, ScorePercentage: 100},
		submitDelay:  50 * time.Millisecond,
	}
	s := newInProgressSession(t, f, clock, time.Hour)
	defer s.Close()

	// manual submit racing a forced-timeout submit
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Submit(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	snap := s.Snapshot()
	require.Equal(t, StateCompleted, snap.State)
	require.NotNil(t, snap.Result)
	require.Equal(t, 3.0, snap.Result.Score)

	_, _, _, submits, _ := f.counts()
	require.Equal(t, 1, submits, "exactly one scoring call must reach the server")
}

func TestLoadRoutesCompletedWithoutStarting(t *testing.T) {
	clock := newFakeClock()
	score, max, pct := 4.0, 5.0, 80.0
	f := &fakeAPI{
		quiz: testQuiz(5),
		elig: shared.Eligibility{
			CanAttempt:          false,
			HasCompletedAttempt: true,
			ExistingAttempt: &shared.QuizAttempt{
				AttemptID:        "att-done",
				Score:            &score,
				MaxPossibleScore: &max,
				ScorePercentage:  &pct,
			},
		},
	}
	s := NewSession(f, clock, time.Hour, testLogger())
	defer s.Close()

	require.NoError(t, s.Load(context.Background(), "quiz-1"))

	snap := s.Snapshot()
	require.Equal(t, StateAlreadyCompleted, snap.State)
	require.NotNil(t, snap.Result)
	require.Equal(t, 4.0, snap.Result.Score)
	require.Equal(t, 80.0, snap.Result.ScorePercentage)

	_, starts, getOrCreates, _, _ := f.counts()
	require.Zero(t, starts, "must never call start for a completed attempt")
	require.Zero(t, getOrCreates, "must never call resume for a completed attempt")
}

func TestLoadResumesInProgressAttempt(t *testing.T) {
	clock := newFakeClock()
	saved := shared.NewAnswerSheet()
	saved.Set("q1", "A")
	saved.Set("q2", "C")
	f := &fakeAPI{
		quiz: testQuiz(3),
		elig: shared.Eligibility{CanAttempt: true, HasInProgressAttempt: true},
		attempt: shared.QuizAttempt{
			AttemptID:            "att-1",
			StartedAt:            clock.Now().Add(-time.Minute),
			Answers:              saved,
			CurrentQuestionIndex: 1,
		},
	}
	s := NewSession(f, clock, time.Hour, testLogger())
	defer s.Close()

	require.NoError(t, s.Load(context.Background(), "quiz-1"))

	snap := s.Snapshot()
	require.Equal(t, StateInProgress, snap.State)
	require.Equal(t, 1, snap.QuestionIndex)
	require.Equal(t, map[string]string{"q1": "A", "q2": "C"}, snap.Answers)
}

func TestSubmitErrorKeepsAnswersForRetry(t *testing.T) {
	clock := newFakeClock()
	f := &fakeAPI{
		quiz:      testQuiz(3),
		attempt:   shared.QuizAttempt{AttemptID: "att-1", StartedAt: clock.Now()},
		submitErr: &api.APIError{Kind: api.KindServer, StatusCode: 500, Message: "boom"},
	}
	s := newInProgressSession(t, f, clock, time.Hour)
	defer s.Close()

	s.SelectAnswer("q1", "A")
	s.SelectAnswer("q2", "B")

	require.Error(t, s.Submit(context.Background()))
	snap := s.Snapshot()
	require.Equal(t, StateSubmitError, snap.State)
	require.Equal(t, map[string]string{"q1": "A", "q2": "B"}, snap.Answers, "answers survive a failed submit")

	// server recovers; retry from SubmitError succeeds
	f.mu.Lock()
	f.submitErr = nil
	f.submitResult = shared.QuizSubmissionResult{AttemptID: "att-1", Score: 2, MaxPossibleScore: 3}
	f.mu.Unlock()

	require.NoError(t, s.Submit(context.Background()))
	require.Equal(t, StateCompleted, s.Snapshot().State)
}

func TestSubmitConflictResolvesToServerResult(t *testing.T) {
	clock := newFakeClock()
	score, max, pct := 2.0, 3.0, 66.7
	done := clock.Now()
	f := &fakeAPI{
		quiz:      testQuiz(3),
		attempt:   shared.QuizAttempt{AttemptID: "att-1", StartedAt: clock.Now()},
		submitErr: &api.APIError{Kind: api.KindConflict, StatusCode: 409, Message: "already submitted"},
		refetchAttempt: &shared.QuizAttempt{
			AttemptID:        "att-1",
			CompletedAt:      &done,
			Score:            &score,
			MaxPossibleScore: &max,
			ScorePercentage:  &pct,
		},
	}
	s := newInProgressSession(t, f, clock, time.Hour)
	defer s.Close()

	// the server already scored this attempt (e.g. a server-side timeout won
	// the race); the client must treat that as success, not a fresh error
	require.NoError(t, s.Submit(context.Background()))

	snap := s.Snapshot()
	require.Equal(t, StateCompleted, snap.State)
	require.NotNil(t, snap.Result)
	require.Equal(t, 2.0, snap.Result.Score)
	require.Equal(t, 66.7, snap.Result.ScorePercentage, "the server's rounded figure, not a derived one")
}

func TestDebouncedCheckpoint(t *testing.T) {
	clock := newFakeClock()
	f := &fakeAPI{
		quiz:    testQuiz(3),
		attempt: shared.QuizAttempt{AttemptID: "att-1", StartedAt: clock.Now()},
	}
	s := newInProgressSession(t, f, clock, 25*time.Millisecond)
	defer s.Close()

	for i := 0; i < 8; i++ {
		s.SelectAnswer("q1", "A")
	}

	require.Eventually(t, func() bool {
		_, _, _, _, saves := f.counts()
		return saves == 1
	}, time.Second, 5*time.Millisecond, "a burst of selections collapses into one checkpoint")

	f.mu.Lock()
	require.Equal(t, map[string]string{"q1": "A"}, f.savedAnswers)
	f.mu.Unlock()
}

func TestNavigationFlushesPendingCheckpoint(t *testing.T) {
	clock := newFakeClock()
	f := &fakeAPI{
		quiz:    testQuiz(3),
		attempt: shared.QuizAttempt{AttemptID: "att-1", StartedAt: clock.Now()},
	}
	s := newInProgressSession(t, f, clock, time.Hour) // debounce would never fire on its own
	defer s.Close()

	s.SelectAnswer("q1", "A")
	s.Advance() // must flush before navigating away

	_, _, _, _, saves := f.counts()
	require.Equal(t, 1, saves)
	f.mu.Lock()
	require.Equal(t, map[string]string{"q1": "A"}, f.savedAnswers)
	f.mu.Unlock()
}

func TestEndToEndThreeQuestionScenario(t *testing.T) {
	clock := newFakeClock()
	f := &fakeAPI{
		quiz:    testQuiz(3),
		attempt: shared.QuizAttempt{AttemptID: "att-1", QuizID: "quiz-1", StartedAt: clock.Now()},
		submitResult: shared.QuizSubmissionResult{
			AttemptID:        "att-1",
			Score:            2,
			MaxPossibleScore: 3,
			ScorePercentage:  66.7,
		},
	}
	s := newInProgressSession(t, f, clock, time.Hour)
	defer s.Close()

	s.SelectAnswer("q1", "A")
	s.Advance()
	s.SelectAnswer("q2", "C")
	s.Advance()
	s.SelectAnswer("q3", "B")

	clock.Advance(120 * time.Second)
	require.NoError(t, s.Submit(context.Background()))

	f.mu.Lock()
	require.Equal(t, 120, f.submittedIn)
	f.mu.Unlock()

	snap := s.Snapshot()
	require.Equal(t, StateCompleted, snap.State)
	require.Equal(t, shared.QuizSubmissionResult{
		AttemptID:        "att-1",
		Score:            2,
		MaxPossibleScore: 3,
		ScorePercentage:  66.7,
	}, *snap.Result, "the server result is exposed unmodified")
}

func TestExpiredAttemptRefusesMutation(t *testing.T) {
	clock := newFakeClock()
	expires := clock.Now().Add(time.Minute)
	f := &fakeAPI{
		quiz:    testQuiz(3),
		attempt: shared.QuizAttempt{AttemptID: "att-1", StartedAt: clock.Now(), ExpiresAt: &expires},
	}
	s := newInProgressSession(t, f, clock, time.Hour)
	defer s.Close()

	s.SelectAnswer("q1", "A")
	clock.Advance(2 * time.Minute) // past the deadline

	s.SelectAnswer("q2", "B")
	require.Equal(t, map[string]string{"q1": "A"}, s.Snapshot().Answers,
		"no mutation after the deadline has passed")
}

func TestLogSuspiciousRecordsEntry(t *testing.T) {
	clock := newFakeClock()
	f := &fakeAPI{
		quiz:    testQuiz(3),
		attempt: shared.QuizAttempt{AttemptID: "att-1", StartedAt: clock.Now()},
	}
	s := newInProgressSession(t, f, clock, time.Hour)
	defer s.Close()

	idx := 1
	s.LogSuspicious("tab_switch", "window lost focus", shared.SeverityWarning, &idx)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.logged, 1)
	require.Equal(t, "tab_switch", f.logged[0].Action)
	require.Equal(t, shared.SeverityWarning, f.logged[0].Severity)
	require.NotEmpty(t, f.logged[0].ID)
	require.Equal(t, &idx, f.logged[0].QuestionIndex)
}
