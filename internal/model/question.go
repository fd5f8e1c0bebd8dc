package model

import "strings"

// QuestionType is the closed set of question kinds the engine understands.
type QuestionType string

const (
	QuestionTypeSingleChoice   QuestionType = "single_choice"
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeTrueFalse      QuestionType = "true_false"
	QuestionTypeFillBlank      QuestionType = "fill_blank"
	QuestionTypeShortAnswer    QuestionType = "short_answer"
	QuestionTypeEssay          QuestionType = "essay"
)

// DefaultTrueFalseOptions are used when a true_false question ships without options.
var DefaultTrueFalseOptions = []string{"True", "False"}

// ParseQuestionType maps a wire string (including legacy aliases) to a QuestionType.
func ParseQuestionType(raw string) (QuestionType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "single_choice", "single":
		return QuestionTypeSingleChoice, true
	case "multiple_choice", "multiple", "multi":
		return QuestionTypeMultipleChoice, true
	case "true_false", "truefalse", "judge":
		return QuestionTypeTrueFalse, true
	case "fill_blank", "fill":
		return QuestionTypeFillBlank, true
	case "short_answer":
		return QuestionTypeShortAnswer, true
	case "essay":
		return QuestionTypeEssay, true
	}
	return "", false
}

// AnswerKind returns the union arm that answers to this question type must use.
func (t QuestionType) AnswerKind() AnswerKind {
	switch t {
	case QuestionTypeSingleChoice, QuestionTypeTrueFalse:
		return AnswerKindSingle
	case QuestionTypeMultipleChoice:
		return AnswerKindMulti
	default:
		return AnswerKindText
	}
}

// HasOptions reports whether the question type carries an option list.
func (t QuestionType) HasOptions() bool {
	return t.AnswerKind() != AnswerKindText
}

// Question is a single read-only exam question supplied by the Content Provider.
type Question struct {
	ID       string       `json:"id" yaml:"id" validate:"required"`
	Type     QuestionType `json:"type" yaml:"type" validate:"required"`
	Prompt   string       `json:"prompt" yaml:"prompt"`
	Options  []string     `json:"options,omitempty" yaml:"options,omitempty" validate:"omitempty,unique,dive,required"`
	OrderNum int          `json:"order_num" yaml:"order_num"`
}

// HasOption reports whether value is one of the question's option strings.
func (q *Question) HasOption(value string) bool {
	for _, opt := range q.Options {
		if opt == value {
			return true
		}
	}
	return false
}
