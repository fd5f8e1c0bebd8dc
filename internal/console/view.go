package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/session"
	"github.com/stemsi/exstem-session/internal/timer"
)

// view is what the screen shows, copied out of the Controller on its own goroutine.
type view struct {
	examName string
	index    int
	total    int
	question *model.Question
	answer   model.Answer
	answered int
	status   model.SessionStatus
}

func snapshot(ctrl *session.Controller) view {
	v := view{status: ctrl.Status()}
	exam := ctrl.Exam()
	if exam == nil {
		return v
	}
	v.examName = exam.Name
	v.total = len(exam.Questions)
	if q, i, ok := ctrl.CurrentQuestion(); ok {
		qc := *q
		v.question = &qc
		v.index = i
		v.answer = ctrl.Answer(q.ID)
	}
	for i := range exam.Questions {
		if !ctrl.Answer(exam.Questions[i].ID).IsBlank() {
			v.answered++
		}
	}
	return v
}

func describe(a model.Answer) string {
	switch a.Kind() {
	case model.AnswerKindSingle:
		if c, ok := a.Choice(); ok {
			return c
		}
		return "(unanswered)"
	case model.AnswerKindMulti:
		if cs := a.Choices(); len(cs) > 0 {
			return strings.Join(cs, ", ")
		}
		return "(none)"
	default:
		if a.Text() == "" {
			return "(empty)"
		}
		return a.Text()
	}
}

func selected(a model.Answer, opt string) bool {
	if c, ok := a.Choice(); ok {
		return c == opt
	}
	for _, c := range a.Choices() {
		if c == opt {
			return true
		}
	}
	return false
}

type frame struct {
	v         view
	remaining time.Duration
	message   string
	prompt    string
	input     string
}

var (
	headerStyle  = tcell.StyleDefault.Reverse(true)
	messageStyle = tcell.StyleDefault.Bold(true)
)

// draw paints the whole frame and places the cursor after the input.
func draw(s tcell.Screen, f frame) {
	s.Clear()
	y := 0
	line := func(style tcell.Style, text string) {
		put(s, 0, y, style, text)
		y++
	}

	line(headerStyle, fmt.Sprintf("%s    time left %s    [%s]", f.v.examName, timer.Format(f.remaining), f.v.status))

	if q := f.v.question; q != nil {
		line(tcell.StyleDefault, fmt.Sprintf("Question %d/%d (%s)    answered %d/%d", f.v.index+1, f.v.total, q.Type, f.v.answered, f.v.total))
		y++
		for _, l := range strings.Split(q.Prompt, "\n") {
			line(tcell.StyleDefault, l)
		}
		y++
		for i, opt := range q.Options {
			mark := " "
			if selected(f.v.answer, opt) {
				mark = "x"
			}
			line(tcell.StyleDefault, fmt.Sprintf("  [%s] %c) %s", mark, 'A'+i, opt))
		}
		line(tcell.StyleDefault, "Answer: "+describe(f.v.answer))
	}

	y++
	line(messageStyle, f.message)
	x := put(s, 0, y, tcell.StyleDefault, f.prompt+f.input)
	s.ShowCursor(x, y)
	s.Show()
}

// put writes text from column x and returns the column after it.
func put(s tcell.Screen, x, y int, style tcell.Style, text string) int {
	for _, r := range text {
		s.SetContent(x, y, r, nil, style)
		x += runewidth.RuneWidth(r)
	}
	return x
}
