package submission

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stemsi/exstem-session/internal/model"
	ws "github.com/stemsi/exstem-session/internal/websocket"
)

// WSTransport submits over the hub's exam stream WebSocket.
// A fresh connection is dialled per attempt.
type WSTransport struct {
	baseURL string
	token   string
	dialer  *websocket.Dialer
}

// NewWSTransport creates a new WSTransport. baseURL is the hub's http(s) root.
func NewWSTransport(baseURL, token string) *WSTransport {
	return &WSTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func (t *WSTransport) streamURL(examID string) (string, error) {
	u, err := url.Parse(t.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/v1/exams/" + url.PathEscape(examID) + "/stream"
	q := u.Query()
	q.Set("token", t.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (t *WSTransport) Deliver(ctx context.Context, s *model.Submission) (*model.SubmissionResponse, error) {
	target, err := t.streamURL(s.ExamID)
	if err != nil {
		return nil, fmt.Errorf("%w: bad hub url: %v", ErrUnreachable, err)
	}

	conn, hs, err := t.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if hs != nil && hs.StatusCode >= 400 && hs.StatusCode < 500 {
			return nil, &RejectedError{Message: fmt.Sprintf("stream handshake refused: %s", hs.Status)}
		}
		return nil, fmt.Errorf("%w: dial: %v", ErrUnreachable, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := ws.WriteTyped(conn, ws.SubmitRequest{Action: ws.ActionSubmit, Submission: s}); err != nil {
		return nil, fmt.Errorf("%w: write: %v", ErrUnreachable, err)
	}

	wait := ws.ReadWait
	if dl, ok := ctx.Deadline(); ok {
		wait = time.Until(dl)
	}

	var reply ws.SubmitResponse
	if err := ws.ReadJSON(conn, &reply, wait); err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrUnreachable, err)
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))

	switch reply.Event {
	case ws.EventAccepted:
		return &model.SubmissionResponse{Success: true, Message: reply.Message}, nil
	case ws.EventRejected:
		return nil, &RejectedError{Message: reply.Message}
	default:
		return nil, fmt.Errorf("%w: hub error: %s", ErrUnreachable, reply.Error)
	}
}
