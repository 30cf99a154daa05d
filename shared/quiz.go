package shared

// Choice is one selectable answer of a question. Letter is the label the
// student picks ("A".."D"), Text the visible answer body.
type Choice struct {
	Letter string `json:"letter"`
	Text   string `json:"text"`
}

type Question struct {
	QuestionID string   `json:"questionId"`
	Text       string   `json:"text"`
	ImageUrl   string   `json:"imageUrl,omitempty"`
	Choices    []Choice `json:"choices"`
}

type Quiz struct {
	QuizID           string     `json:"quizId"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	TimeLimitMinutes int        `json:"timeLimitMinutes,omitempty"`
	Questions        []Question `json:"questions"`
}

// GetQuestion returns the question at idx, or a zero Question when idx is out of range.
func (q Quiz) GetQuestion(idx int) Question {
	if idx < 0 || idx >= len(q.Questions) {
		return Question{}
	}
	return q.Questions[idx]
}

func (q Quiz) Len() int {
	return len(q.Questions)
}
