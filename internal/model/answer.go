package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// AnswerKind selects the arm of the Answer union.
type AnswerKind string

const (
	AnswerKindSingle AnswerKind = "single"
	AnswerKindMulti  AnswerKind = "multi"
	AnswerKindText   AnswerKind = "text"
)

// Answer is a tagged union keyed by question type:
//
//	Single(choice | unanswered)
//	Multi(set of choices)
//	Text(string)
//
// The unanswered state of a Single answer is a distinct sentinel and never
// compares equal to any option, including the empty string.
type Answer struct {
	kind     AnswerKind
	choice   string
	answered bool
	set      []string
	text     string
}

// Unanswered returns the Single sentinel.
func Unanswered() Answer {
	return Answer{kind: AnswerKindSingle}
}

// SingleAnswer returns a Single answer selecting choice.
func SingleAnswer(choice string) Answer {
	return Answer{kind: AnswerKindSingle, choice: choice, answered: true}
}

// MultiAnswer returns a Multi answer; duplicates collapse and order is canonicalised.
func MultiAnswer(choices ...string) Answer {
	seen := make(map[string]struct{}, len(choices))
	set := make([]string, 0, len(choices))
	for _, c := range choices {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		set = append(set, c)
	}
	sort.Strings(set)
	return Answer{kind: AnswerKindMulti, set: set}
}

// TextAnswer returns a Text answer.
func TextAnswer(text string) Answer {
	return Answer{kind: AnswerKindText, text: text}
}

// Kind returns the union arm. The zero Answer reports AnswerKindSingle (unanswered).
func (a Answer) Kind() AnswerKind {
	if a.kind == "" {
		return AnswerKindSingle
	}
	return a.kind
}

// Choice returns the selected option of a Single answer and whether one is selected.
func (a Answer) Choice() (string, bool) {
	if a.Kind() != AnswerKindSingle {
		return "", false
	}
	return a.choice, a.answered
}

// Choices returns a copy of the selected options of a Multi answer.
func (a Answer) Choices() []string {
	out := make([]string, len(a.set))
	copy(out, a.set)
	return out
}

// Text returns the text of a Text answer.
func (a Answer) Text() string {
	return a.text
}

// IsBlank reports whether the answer carries no user input.
func (a Answer) IsBlank() bool {
	switch a.Kind() {
	case AnswerKindSingle:
		return !a.answered
	case AnswerKindMulti:
		return len(a.set) == 0
	default:
		return a.text == ""
	}
}

// Equal reports whether two answers are the same arm with the same value.
func (a Answer) Equal(b Answer) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case AnswerKindSingle:
		return a.answered == b.answered && a.choice == b.choice
	case AnswerKindMulti:
		if len(a.set) != len(b.set) {
			return false
		}
		for i := range a.set {
			if a.set[i] != b.set[i] {
				return false
			}
		}
		return true
	default:
		return a.text == b.text
	}
}

// WireValue flattens the answer into the submission payload shape:
// nil for the sentinel, string for single/text, []string for multi.
func (a Answer) WireValue() any {
	switch a.Kind() {
	case AnswerKindSingle:
		if !a.answered {
			return nil
		}
		return a.choice
	case AnswerKindMulti:
		return a.Choices()
	default:
		return a.text
	}
}

func (a Answer) String() string {
	switch a.Kind() {
	case AnswerKindSingle:
		if !a.answered {
			return "single(<unanswered>)"
		}
		return fmt.Sprintf("single(%q)", a.choice)
	case AnswerKindMulti:
		return fmt.Sprintf("multi(%q)", a.set)
	default:
		return fmt.Sprintf("text(%q)", a.text)
	}
}

type answerJSON struct {
	Kind  AnswerKind      `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the answer as {"kind": ..., "value": ...}; the sentinel is a null value.
func (a Answer) MarshalJSON() ([]byte, error) {
	value, err := json.Marshal(a.WireValue())
	if err != nil {
		return nil, err
	}
	return json.Marshal(answerJSON{Kind: a.Kind(), Value: value})
}

// UnmarshalJSON decodes the format written by MarshalJSON.
func (a *Answer) UnmarshalJSON(data []byte) error {
	var raw answerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	isNull := len(raw.Value) == 0 || string(raw.Value) == "null"

	switch raw.Kind {
	case AnswerKindSingle, "":
		if isNull {
			*a = Unanswered()
			return nil
		}
		var choice string
		if err := json.Unmarshal(raw.Value, &choice); err != nil {
			return fmt.Errorf("decode single answer: %w", err)
		}
		*a = SingleAnswer(choice)
	case AnswerKindMulti:
		var set []string
		if !isNull {
			if err := json.Unmarshal(raw.Value, &set); err != nil {
				return fmt.Errorf("decode multi answer: %w", err)
			}
		}
		*a = MultiAnswer(set...)
	case AnswerKindText:
		var text string
		if !isNull {
			if err := json.Unmarshal(raw.Value, &text); err != nil {
				return fmt.Errorf("decode text answer: %w", err)
			}
		}
		*a = TextAnswer(text)
	default:
		return fmt.Errorf("unknown answer kind %q", raw.Kind)
	}
	return nil
}
