// Package content fetches and validates the exam paper delivered at session start.
package content

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/validator"
)

var (
	ErrNotFound = errors.New("exam content not found")
	ErrInvalid  = errors.New("exam content invalid")
)

// LoadError is returned by every Provider when content cannot be used.
type LoadError struct {
	ExamID string
	Err    error
	// Fields carries per-field validation messages when Err is ErrInvalid.
	Fields map[string]string
}

func (e *LoadError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("load exam %s: %v", e.ExamID, e.Err)
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("load exam %s: %v (%s)", e.ExamID, e.Err, strings.Join(parts, "; "))
}

func (e *LoadError) Unwrap() error { return e.Err }

// Provider supplies exam content by id.
type Provider interface {
	Load(ctx context.Context, examID string) (*model.ExamContent, error)
}

func loadError(examID string, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		return le
	}
	return &LoadError{ExamID: examID, Err: err}
}

func invalid(examID, field, msg string) *LoadError {
	return &LoadError{ExamID: examID, Err: ErrInvalid, Fields: map[string]string{field: msg}}
}

// Prepare canonicalises freshly decoded content and validates it: question
// type aliases are resolved, true_false questions get default options, text
// questions drop options, and questions are ordered by order_num.
func Prepare(exam *model.ExamContent, examID string) error {
	if exam.ID == "" {
		exam.ID = examID
	}
	if exam.ID != examID {
		return invalid(examID, "id", fmt.Sprintf("paper is for exam %q", exam.ID))
	}

	seen := make(map[string]struct{}, len(exam.Questions))
	for i := range exam.Questions {
		q := &exam.Questions[i]
		field := fmt.Sprintf("questions[%d]", i)

		t, ok := model.ParseQuestionType(string(q.Type))
		if !ok {
			return invalid(examID, field+".type", fmt.Sprintf("unknown question type %q", q.Type))
		}
		q.Type = t

		if _, dup := seen[q.ID]; dup && q.ID != "" {
			return invalid(examID, field+".id", fmt.Sprintf("duplicate question id %q", q.ID))
		}
		seen[q.ID] = struct{}{}

		switch {
		case t == model.QuestionTypeTrueFalse && len(q.Options) == 0:
			q.Options = append([]string(nil), model.DefaultTrueFalseOptions...)
		case !t.HasOptions():
			q.Options = nil
		case len(q.Options) == 0:
			return invalid(examID, field+".options", "choice question has no options")
		}
	}

	if fields := validator.Struct(exam); fields != nil {
		return &LoadError{ExamID: examID, Err: ErrInvalid, Fields: fields}
	}

	exam.SortQuestions()
	return nil
}
