// Package console is a terminal UI shell for the exam client built on tcell.
// It implements proctor.Shell (full-screen raw mode, focus reporting) and
// session.Listener.
package console

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/answer"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/proctor"
	"github.com/stemsi/exstem-session/internal/session"
	"github.com/stemsi/exstem-session/internal/submission"
)

// ErrNotOpen is returned by Shell calls made before Open.
var ErrNotOpen = errors.New("console screen is not open")

// Shortcuts a terminal can actually swallow (raw mode turns off ISIG).
var enforceable = []string{"Ctrl+C", "Ctrl+Z", `Ctrl+\`}

// VerifyFunc resolves a proctor's token into an identity for overrides.
type VerifyFunc func(token string) (model.Identity, error)

type inputMode int

const (
	modeCommand inputMode = iota
	modeConfirm
	modeToken
	modePassphrase
)

// Console drives one exam session on a terminal.
type Console struct {
	screen tcell.Screen
	log    zerolog.Logger

	runner  *session.Runner
	monitor *proctor.Monitor
	verify  VerifyFunc

	mu         sync.Mutex
	open       bool
	suppressed []string
	v          view
	remaining  time.Duration
	message    string
	input      []rune
	mode       inputMode
	token      string
}

// New creates a Console. Until Open it records session events without drawing.
func New(log zerolog.Logger) *Console {
	return &Console{
		log: log.With().Str("component", "console").Logger(),
	}
}

// Open takes over screen in raw full-screen mode.
func (c *Console) Open(screen tcell.Screen) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		return nil
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}
	c.screen = screen
	c.open = true
	return nil
}

// Close restores the terminal. Safe to call more than once.
func (c *Console) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return
	}
	c.open = false
	c.screen.Fini()
}

// Attach wires the running session. verify may be nil to disable overrides.
func (c *Console) Attach(runner *session.Runner, monitor *proctor.Monitor, verify VerifyFunc) {
	c.runner = runner
	c.monitor = monitor
	c.verify = verify
}

// ─── proctor.Shell ──────────────────────────────────────────────────

// SetExclusive toggles focus reporting. Presentation is already full
// screen while the console is open.
func (c *Console) SetExclusive(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return ErrNotOpen
	}
	if on {
		c.screen.EnableFocus()
	} else {
		c.screen.DisableFocus()
	}
	return nil
}

func (c *Console) SuppressShortcuts(shortcuts []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suppressed = shortcuts
	if len(shortcuts) > 0 {
		c.log.Debug().
			Strs("requested", shortcuts).
			Strs("enforced", enforceable).
			Msg("Terminal suppresses signal keys only")
	}
	return nil
}

// Refocus rings the terminal bell; a terminal cannot raise its own window.
func (c *Console) Refocus() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNotOpen
	}
	return c.screen.Beep()
}

// ─── session.Listener ───────────────────────────────────────────────

func (c *Console) OnAnswerChanged(questionID string, a model.Answer) {
	c.update(func() {
		if c.v.question != nil && c.v.question.ID == questionID {
			c.v.answer = a
		}
	})
}

func (c *Console) OnTick(remaining time.Duration) {
	c.update(func() { c.remaining = remaining })
}

func (c *Console) OnSubmitResult(r session.SubmitResult) {
	c.update(func() {
		switch r.Outcome {
		case submission.OutcomeAccepted:
			c.message = "Submitted. You may close this window."
		case submission.OutcomeRejected:
			c.message = "Submission rejected: " + r.Message + ". Your answers are saved; type submit to retry."
		default:
			if r.Status == model.SessionStatusExpired {
				c.message = "Time is up and the server is unreachable. Your answers are saved for your proctor."
			} else {
				c.message = "Server unreachable. Your answers are saved; type submit to retry."
			}
		}
	})
}

func (c *Console) OnStatusChanged(_, to model.SessionStatus) {
	c.update(func() {
		c.v.status = to
		if to == model.SessionStatusSubmitting {
			c.message = "Submitting..."
		}
	})
}

// ─── Input loop ─────────────────────────────────────────────────────

// Run handles terminal events until the session finishes, the user quits or ctx ends.
func (c *Console) Run(ctx context.Context) error {
	if !c.screenOpen() {
		return ErrNotOpen
	}

	events := make(chan tcell.Event, 64)
	quit := make(chan struct{})
	defer close(quit)
	go c.screen.ChannelEvents(events, quit)

	c.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.runner.Done():
			c.update(func() {})
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if _, resized := ev.(*tcell.EventResize); resized {
				c.screen.Sync()
				c.update(func() {})
				continue
			}
			if k, ok := translate(ev); ok {
				c.handleKey(ctx, k)
			}
		}
	}
}

func (c *Console) screenOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *Console) handleKey(ctx context.Context, k Key) {
	switch k.Kind {
	case KeyFocusOut:
		c.monitor.FocusLost()
	case KeyFocusIn:
		c.monitor.FocusGained()
	case KeyBlocked:
		c.monitor.ShortcutBlocked(k.Name)
		c.update(func() { c.message = k.Name + " is disabled during the exam." })
	case KeyLeft, KeyRight:
		c.mu.Lock()
		idle := c.mode == modeCommand && len(c.input) == 0
		c.mu.Unlock()
		if idle {
			delta := 1
			if k.Kind == KeyLeft {
				delta = -1
			}
			c.do(ctx, func(ctx context.Context, ctrl *session.Controller) error {
				return ctrl.Step(ctx, delta)
			})
		}
	case KeyRune:
		c.update(func() { c.input = append(c.input, k.Rune) })
	case KeyBackspace:
		c.update(func() {
			if len(c.input) > 0 {
				c.input = c.input[:len(c.input)-1]
			}
		})
	case KeyEnter:
		c.mu.Lock()
		line := string(c.input)
		c.input = c.input[:0]
		mode := c.mode
		c.mu.Unlock()
		c.handleLine(ctx, mode, line)
	}
}

func (c *Console) handleLine(ctx context.Context, mode inputMode, line string) {
	switch mode {
	case modeConfirm:
		c.setMode(modeCommand, "")
		if ans := strings.ToLower(strings.TrimSpace(line)); ans != "y" && ans != "yes" {
			c.update(func() { c.message = "Submission cancelled." })
			return
		}
		if err := c.runner.RequestSubmit(ctx, true); err != nil {
			c.fail(err)
		}
		return

	case modeToken:
		c.mu.Lock()
		c.token = strings.TrimSpace(line)
		c.mu.Unlock()
		c.setMode(modePassphrase, "")
		return

	case modePassphrase:
		c.mu.Lock()
		token := c.token
		c.token = ""
		c.mu.Unlock()
		c.setMode(modeCommand, "")
		c.override(token, line)
		return
	}

	cmd, err := parseCommand(line)
	if err != nil {
		c.update(func() { c.message = err.Error() })
		return
	}

	switch cmd.kind {
	case cmdNext:
		c.do(ctx, func(ctx context.Context, ctrl *session.Controller) error { return ctrl.Step(ctx, 1) })
	case cmdPrev:
		c.do(ctx, func(ctx context.Context, ctrl *session.Controller) error { return ctrl.Step(ctx, -1) })
	case cmdGoto:
		c.do(ctx, func(ctx context.Context, ctrl *session.Controller) error { return ctrl.Navigate(ctx, cmd.index) })
	case cmdAnswer:
		c.do(ctx, func(_ context.Context, ctrl *session.Controller) error {
			q, _, ok := ctrl.CurrentQuestion()
			if !ok {
				return session.ErrNotActive
			}
			_, err := ctrl.RecordAnswer(q.ID, rawAnswer(q, cmd.arg))
			return err
		})
	case cmdSubmit:
		c.setMode(modeConfirm, "Submit now? Unanswered questions are sent blank.")
	case cmdOverride:
		if c.verify == nil {
			c.update(func() { c.message = "Override is not available on this station." })
			return
		}
		c.setMode(modeToken, "Proctor override.")
	case cmdHelp:
		c.update(func() { c.message = helpText })
	case cmdQuit:
		c.do(ctx, func(ctx context.Context, ctrl *session.Controller) error { return ctrl.Abandon(ctx) })
	}
}

func (c *Console) override(token, passphrase string) {
	id, err := c.verify(token)
	if err != nil {
		c.fail(err)
		return
	}
	if err := c.monitor.Override(id, passphrase); err != nil {
		c.fail(err)
		return
	}
	c.update(func() { c.message = "Proctoring released by " + id.UserID + "." })
}

// do runs fn on the session loop and refreshes the view from the same goroutine.
func (c *Console) do(ctx context.Context, fn func(context.Context, *session.Controller) error) {
	err := c.runner.Do(ctx, func(ctx context.Context, ctrl *session.Controller) error {
		err := fn(ctx, ctrl)
		v := snapshot(ctrl)
		c.update(func() {
			c.v = v
			if err == nil {
				c.message = ""
			}
		})
		return err
	})
	if err != nil && !errors.Is(err, session.ErrRunnerStopped) {
		c.fail(err)
	}
}

func (c *Console) refresh(ctx context.Context) {
	c.do(ctx, func(context.Context, *session.Controller) error { return nil })
}

func (c *Console) fail(err error) {
	var ve *answer.ValidationError
	msg := err.Error()
	switch {
	case errors.As(err, &ve):
		msg = "That is not a valid answer for this question."
	case errors.Is(err, session.ErrIndexOutOfRange):
		msg = "No such question."
	case errors.Is(err, session.ErrSubmitInFlight):
		msg = "Submission in progress, please wait."
	case errors.Is(err, session.ErrAlreadySubmitted):
		msg = "This exam has already been submitted."
	case errors.Is(err, session.ErrNotActive):
		msg = "The exam is closed; answers can no longer change."
	case errors.Is(err, proctor.ErrNotPrivileged), errors.Is(err, proctor.ErrBadPassphrase):
		msg = "Override denied."
	}
	c.update(func() { c.message = msg })
}

func (c *Console) setMode(m inputMode, message string) {
	c.update(func() {
		c.mode = m
		if message != "" {
			c.message = message
		}
	})
}

// update applies fn and redraws under the screen lock.
func (c *Console) update(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()

	prompt := "> "
	input := string(c.input)
	switch c.mode {
	case modeConfirm:
		prompt = "Submit? (y/n) "
	case modeToken:
		prompt = "Proctor token: "
		input = strings.Repeat("*", len(c.input))
	case modePassphrase:
		prompt = "Passphrase: "
		input = strings.Repeat("*", len(c.input))
	}

	if !c.open {
		return
	}
	draw(c.screen, frame{
		v:         c.v,
		remaining: c.remaining,
		message:   c.message,
		prompt:    prompt,
		input:     input,
	})
}
