package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/cg-del/filiup/quiz_client/api"
	"github.com/cg-del/filiup/quiz_client/attempt"
	"github.com/cg-del/filiup/quiz_client/auth"
	"github.com/cg-del/filiup/quiz_client/config"
	"github.com/cg-del/filiup/quiz_client/leaderboard"
	"github.com/cg-del/filiup/quiz_client/notify"
	"github.com/cg-del/filiup/shared"
)

func getEnvFilePath() string {
	root, err := filepath.Abs(".")
	if err != nil {
		log.Fatal("failed to find project root dir")
	}
	return filepath.Join(root, ".env")
}

func main() {
	// Load environment variables file, if running in development
	if os.Getenv("ENV") != "production" && os.Getenv("ENV") != "test" {
		if err := godotenv.Load(getEnvFilePath()); err != nil {
			log.Printf("no .env file loaded: %v", err)
		}
	}

	if len(os.Args) < 3 {
		fmt.Println("usage: filiup <student-id> <quiz-id>")
		os.Exit(2)
	}
	studentID, quizID := os.Args[1], os.Args[2]

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg := config.LoadConfig()
	tokens := auth.StaticToken(cfg.Auth.Token)

	client := api.NewClient(cfg.API.BaseURL, tokens, logger)
	boards := leaderboard.NewClient(cfg.API.BaseURL, tokens)
	session := attempt.NewSession(client, attempt.SystemClock, 2*time.Second, logger)
	defer session.Close()

	session.SetAlertFunc(func(message string, minutesRemaining int) {
		fmt.Printf("\n*** %s (%d minute(s) remaining) ***\n> ", message, minutesRemaining)
	})

	channel := notify.NewChannel(cfg.MQ, tokens, logger)
	if err := channel.Connect(context.Background(), studentID); err != nil {
		logger.Error("notification channel unavailable, continuing without pushes", "err", err)
	} else {
		defer channel.Disconnect()
		channel.RegisterHandler(session.HandleNotification)

		go func() {
			ticker := time.NewTicker(cfg.MQ.HeartbeatInterval)
			defer ticker.Stop()
			for range ticker.C {
				channel.SendHeartbeat()
			}
		}()
	}

	ctx := context.Background()
	if err := session.Load(ctx, quizID); err != nil {
		logger.Error("failed to load quiz", "quizId", quizID, "err", err)
		os.Exit(1)
	}

	snap := session.Snapshot()
	switch snap.State {
	case attempt.StateAlreadyCompleted:
		fmt.Println("This quiz has already been submitted.")
		printResult(snap.Result)
		printLeaderboard(ctx, boards, quizID)
		return
	case attempt.StateEligibleNotStarted:
		fmt.Printf("Quiz: %s (%d questions). Press enter to start.\n", snap.QuizTitle, snap.QuestionCount)
		bufio.NewReader(os.Stdin).ReadString('\n')
		if err := session.Start(ctx); err != nil {
			logger.Error("failed to start attempt", "err", err)
			os.Exit(1)
		}
	case attempt.StateInProgress:
		fmt.Println("Resuming your attempt...")
	}

	runQuizLoop(ctx, session, logger)

	final := session.Snapshot()
	if final.State == attempt.StateCompleted {
		printResult(final.Result)
		printLeaderboard(ctx, boards, quizID)
	}
}

// runQuizLoop renders the current snapshot and maps keystrokes onto session
// intents until the attempt reaches a terminal state.
func runQuizLoop(ctx context.Context, session *attempt.Session, logger *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		snap := session.Snapshot()
		switch snap.State {
		case attempt.StateCompleted, attempt.StateAlreadyCompleted:
			return
		case attempt.StateSubmitError:
			fmt.Printf("Submit failed: %s. Type 's' to retry or 'q' to quit.\n", snap.LastErrMessage)
		case attempt.StateInProgress:
			render(snap)
		}

		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		input := strings.TrimSpace(scanner.Text())

		switch strings.ToLower(input) {
		case "q":
			return
		case "n":
			session.Advance()
		case "p":
			session.Retreat()
		case "s":
			if err := session.Submit(ctx); err != nil {
				logger.Warn("submit failed", "err", err)
			}
		case "":
		default:
			q := snap.Question
			matched := false
			for _, choice := range q.Choices {
				if strings.EqualFold(choice.Letter, input) {
					session.SelectAnswer(q.QuestionID, choice.Text)
					matched = true
					break
				}
			}
			if !matched {
				fmt.Println("Commands: A-D answer, n next, p previous, s submit, q quit")
			}
		}
	}
}

func render(snap attempt.Snapshot) {
	fmt.Printf("\n[%s] Question %d/%d", snap.QuizTitle, snap.QuestionIndex+1, snap.QuestionCount)
	if snap.HasDeadline {
		fmt.Printf("  (%s left)", snap.TimeRemaining.Round(time.Second))
	}
	fmt.Printf("\n%s\n", snap.Question.Text)
	for _, choice := range snap.Question.Choices {
		marker := " "
		if choice.Text == snap.CurrentAnswer {
			marker = "*"
		}
		fmt.Printf(" %s %s) %s\n", marker, choice.Letter, choice.Text)
	}
	fmt.Printf("Answered %d/%d\n", snap.AnsweredCount, snap.QuestionCount)
}

func printResult(result *shared.QuizSubmissionResult) {
	if result == nil {
		return
	}
	fmt.Printf("\nScore: %.1f / %.1f (%.1f%%)\n", result.Score, result.MaxPossibleScore, result.ScorePercentage)
	if result.PerformanceLevel != "" {
		fmt.Println("Performance:", result.PerformanceLevel)
	}
	if result.Feedback != "" {
		fmt.Println(result.Feedback)
	}
}

func printLeaderboard(ctx context.Context, boards *leaderboard.Client, quizID string) {
	board, err := boards.GetQuizLeaderboard(ctx, quizID)
	if err != nil {
		fmt.Println("leaderboard unavailable:", err)
		return
	}
	fmt.Println("\nLeaderboard:")
	for _, entry := range board.Entries {
		fmt.Printf(" %2d. %-20s %6.1f  (%ds)\n", entry.Rank, entry.StudentName, entry.Score, entry.TimeTakenSeconds)
	}
}
