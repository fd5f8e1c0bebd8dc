package console

import (
	"errors"
	"strconv"
	"strings"

	"github.com/stemsi/exstem-session/internal/model"
)

var errUnknownCommand = errors.New("unknown command, type help")

type commandKind int

const (
	cmdNone commandKind = iota
	cmdNext
	cmdPrev
	cmdGoto
	cmdAnswer
	cmdSubmit
	cmdOverride
	cmdHelp
	cmdQuit
)

type command struct {
	kind  commandKind
	index int
	arg   string
}

const helpText = "n next | p prev | g N go to | a VALUE answer (a - clears, a A,C for multiple) | submit | quit | help"

func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{kind: cmdNone}, nil
	}
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "n", "next":
		return command{kind: cmdNext}, nil
	case "p", "prev":
		return command{kind: cmdPrev}, nil
	case "g", "goto":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return command{}, errors.New("g needs a question number")
		}
		// Questions are shown 1-based.
		return command{kind: cmdGoto, index: n - 1}, nil
	case "a", "answer":
		if arg == "" {
			return command{}, errors.New("a needs a value; use a - to clear")
		}
		return command{kind: cmdAnswer, arg: arg}, nil
	case "submit":
		return command{kind: cmdSubmit}, nil
	case "override":
		return command{kind: cmdOverride}, nil
	case "help", "h", "?":
		return command{kind: cmdHelp}, nil
	case "quit", "exit":
		return command{kind: cmdQuit}, nil
	}
	return command{}, errUnknownCommand
}

// rawAnswer converts typed text into the raw shape the normalizer expects
// for q. Choice questions also accept a letter (A, B, ...) naming an option
// by position.
func rawAnswer(q *model.Question, arg string) any {
	if arg == "-" {
		if q.Type == model.QuestionTypeMultipleChoice {
			return []string{}
		}
		return nil
	}

	switch q.Type {
	case model.QuestionTypeMultipleChoice:
		parts := strings.Split(arg, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, optionFor(q, p))
			}
		}
		return out
	case model.QuestionTypeSingleChoice, model.QuestionTypeTrueFalse:
		return optionFor(q, arg)
	}
	return arg
}

func optionFor(q *model.Question, token string) string {
	if q.HasOption(token) {
		return token
	}
	for _, opt := range q.Options {
		if strings.EqualFold(opt, token) {
			return opt
		}
	}
	if len(token) == 1 {
		i := int(strings.ToUpper(token)[0]) - 'A'
		if i >= 0 && i < len(q.Options) {
			return q.Options[i]
		}
	}
	return token
}
