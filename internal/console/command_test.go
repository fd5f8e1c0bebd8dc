package console

import (
	"reflect"
	"testing"

	"github.com/stemsi/exstem-session/internal/model"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		line string
		want command
		bad  bool
	}{
		{line: "n", want: command{kind: cmdNext}},
		{line: "  prev ", want: command{kind: cmdPrev}},
		{line: "g 3", want: command{kind: cmdGoto, index: 2}},
		{line: "g x", bad: true},
		{line: "a Mitochondria  ", want: command{kind: cmdAnswer, arg: "Mitochondria"}},
		{line: "a", bad: true},
		{line: "SUBMIT", want: command{kind: cmdSubmit}},
		{line: "", want: command{kind: cmdNone}},
		{line: "dance", bad: true},
	}

	for _, tc := range cases {
		got, err := parseCommand(tc.line)
		if tc.bad {
			if err == nil {
				t.Fatalf("%q: expected an error", tc.line)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", tc.line, err)
		}
		if got != tc.want {
			t.Fatalf("%q: got %+v, want %+v", tc.line, got, tc.want)
		}
	}
}

func TestRawAnswer(t *testing.T) {
	single := &model.Question{ID: "q1", Type: model.QuestionTypeSingleChoice, Options: []string{"Red", "Green", "Blue"}}
	multi := &model.Question{ID: "q2", Type: model.QuestionTypeMultipleChoice, Options: []string{"X", "Y", "Z"}}
	text := &model.Question{ID: "q3", Type: model.QuestionTypeEssay}

	cases := []struct {
		name string
		q    *model.Question
		arg  string
		want any
	}{
		{"exact option", single, "Green", "Green"},
		{"case folded", single, "blue", "Blue"},
		{"letter", single, "a", "Red"},
		{"clear single", single, "-", nil},
		{"multi letters and names", multi, "A, z", []string{"X", "Z"}},
		{"clear multi", multi, "-", []string{}},
		{"text kept", text, "a, b", "a, b"},
	}

	for _, tc := range cases {
		if got := rawAnswer(tc.q, tc.arg); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s: got %#v, want %#v", tc.name, got, tc.want)
		}
	}
}
