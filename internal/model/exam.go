package model

import (
	"sort"
	"time"
)

// ExamContent is the paper delivered once by the Content Provider at session start.
type ExamContent struct {
	ID              string     `json:"id" yaml:"id" validate:"required"`
	Name            string     `json:"name" yaml:"name" validate:"required"`
	DurationMinutes int        `json:"duration_minutes" yaml:"duration_minutes" validate:"required,min=1,max=1440"`
	Questions       []Question `json:"questions" yaml:"questions" validate:"required,min=1,dive"`
}

// Duration returns the allotted time for one attempt.
func (e *ExamContent) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// SortQuestions orders questions by OrderNum, keeping delivery order for ties.
func (e *ExamContent) SortQuestions() {
	sort.SliceStable(e.Questions, func(i, j int) bool {
		return e.Questions[i].OrderNum < e.Questions[j].OrderNum
	})
}

// QuestionByID returns the question with the given id.
func (e *ExamContent) QuestionByID(id string) (*Question, bool) {
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			return &e.Questions[i], true
		}
	}
	return nil, false
}
