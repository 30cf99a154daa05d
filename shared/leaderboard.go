package shared

// LeaderboardEntry is one row of a quiz leaderboard as computed by the server.
type LeaderboardEntry struct {
	Rank             int     `json:"rank"`
	StudentID        string  `json:"studentId"`
	StudentName      string  `json:"studentName"`
	Score            float64 `json:"score"`
	TimeTakenSeconds int     `json:"timeTakenSeconds"`
}

// Leaderboard is the ranked table for one quiz.
type Leaderboard struct {
	QuizID  string             `json:"quizId"`
	Entries []LeaderboardEntry `json:"entries"`
}
