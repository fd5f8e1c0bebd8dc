// Package answer converts UI-entered values into the canonical model.Answer
// union and back. All functions are pure and idempotent.
package answer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stemsi/exstem-session/internal/model"
)

var (
	// ErrShapeMismatch means the raw value is the wrong shape for the question type.
	ErrShapeMismatch = errors.New("answer shape does not match question type")
	// ErrUnknownOption means a choice is not one of the question's options.
	ErrUnknownOption = errors.New("answer is not one of the question options")
	// ErrUnknownQuestionType means the question carries a type the engine does not know.
	ErrUnknownQuestionType = errors.New("unknown question type")
)

// ValidationError is returned when a raw value cannot be normalized for a question.
// Callers keep the previous valid answer when they receive it.
type ValidationError struct {
	QuestionID string
	Type       model.QuestionType
	Raw        any
	Err        error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("question %s (%s): %v (got %T)", e.QuestionID, e.Type, e.Err, e.Raw)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Normalize converts raw into the canonical answer for q.
//
// Accepted raw shapes:
//   - single_choice, true_false: nil or "" (unanswered), or one option string
//   - multiple_choice: []string, map[string]bool (checkbox state), a single
//     option string, or nil (empty set)
//   - fill_blank, short_answer, essay: string (trimmed) or nil (empty)
func Normalize(q *model.Question, raw any) (model.Answer, error) {
	fail := func(err error) (model.Answer, error) {
		return model.Answer{}, &ValidationError{QuestionID: q.ID, Type: q.Type, Raw: raw, Err: err}
	}

	switch q.Type {
	case model.QuestionTypeSingleChoice, model.QuestionTypeTrueFalse:
		switch v := raw.(type) {
		case nil:
			return model.Unanswered(), nil
		case string:
			if v == "" {
				return model.Unanswered(), nil
			}
			if !q.HasOption(v) {
				return fail(ErrUnknownOption)
			}
			return model.SingleAnswer(v), nil
		default:
			return fail(ErrShapeMismatch)
		}

	case model.QuestionTypeMultipleChoice:
		var choices []string
		switch v := raw.(type) {
		case nil:
		case []string:
			choices = v
		case string:
			choices = []string{v}
		case map[string]bool:
			for opt, checked := range v {
				if checked {
					choices = append(choices, opt)
				}
			}
		default:
			return fail(ErrShapeMismatch)
		}
		for _, c := range choices {
			if !q.HasOption(c) {
				return fail(ErrUnknownOption)
			}
		}
		return model.MultiAnswer(choices...), nil

	case model.QuestionTypeFillBlank, model.QuestionTypeShortAnswer, model.QuestionTypeEssay:
		switch v := raw.(type) {
		case nil:
			return model.TextAnswer(""), nil
		case string:
			return model.TextAnswer(strings.TrimSpace(v)), nil
		default:
			return fail(ErrShapeMismatch)
		}
	}

	return fail(ErrUnknownQuestionType)
}

// Denormalize returns the raw value shape a UI shell would have produced for a.
// The sentinel maps back to nil.
func Denormalize(a model.Answer) any {
	switch a.Kind() {
	case model.AnswerKindSingle:
		if choice, ok := a.Choice(); ok {
			return choice
		}
		return nil
	case model.AnswerKindMulti:
		return a.Choices()
	default:
		return a.Text()
	}
}

// Blank returns the empty answer for q: the sentinel, an empty set or empty text.
func Blank(q *model.Question) model.Answer {
	switch q.Type.AnswerKind() {
	case model.AnswerKindMulti:
		return model.MultiAnswer()
	case model.AnswerKindText:
		return model.TextAnswer("")
	default:
		return model.Unanswered()
	}
}

// Conforms reports whether a is the union arm q's type requires.
func Conforms(q *model.Question, a model.Answer) bool {
	if a.Kind() != q.Type.AnswerKind() {
		return false
	}
	switch a.Kind() {
	case model.AnswerKindSingle:
		choice, ok := a.Choice()
		return !ok || q.HasOption(choice)
	case model.AnswerKindMulti:
		for _, c := range a.Choices() {
			if !q.HasOption(c) {
				return false
			}
		}
	}
	return true
}

// Flatten builds the submission answer map for every question in exam. Questions
// without a recorded answer contribute their blank value.
func Flatten(exam *model.ExamContent, answers map[string]model.Answer) map[string]any {
	out := make(map[string]any, len(exam.Questions))
	for i := range exam.Questions {
		q := &exam.Questions[i]
		a, ok := answers[q.ID]
		if !ok || !Conforms(q, a) {
			a = Blank(q)
		}
		out[q.ID] = a.WireValue()
	}
	return out
}

// FlattenRecorded builds a submission answer map from recorded answers only,
// used when the exam content is not available (operator resubmission).
func FlattenRecorded(answers map[string]model.Answer) map[string]any {
	out := make(map[string]any, len(answers))
	for id, a := range answers {
		out[id] = a.WireValue()
	}
	return out
}
