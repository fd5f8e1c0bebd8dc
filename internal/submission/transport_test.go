package submission

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stemsi/exstem-session/internal/hubclient"
	ws "github.com/stemsi/exstem-session/internal/websocket"
)

func envelopeHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func TestHTTPTransportClassification(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"accepted", 201, `{"data":{"success":true,"message":"stored"}}`, nil},
		{"success false", 200, `{"data":{"success":false,"message":"closed"}}`, ErrRejected},
		{"client error", 409, `{"data":null,"error":{"code":"CONFLICT","message":"mismatch"}}`, ErrRejected},
		{"server error", 503, `{"data":null,"error":{"code":"INTERNAL_ERROR","message":"down"}}`, ErrUnreachable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var gotPath string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				envelopeHandler(tc.status, tc.body)(w, r)
			}))
			defer srv.Close()

			tr := NewHTTPTransport(hubclient.New(srv.URL, "tok", srv.Client()))
			_, err := tr.Deliver(context.Background(), sampleSubmission())
			if gotPath != "/api/v1/exams/e1/submissions" {
				t.Fatalf("unexpected path %q", gotPath)
			}
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestHTTPTransportUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPTransport(hubclient.New(url, "", nil)).Deliver(context.Background(), sampleSubmission())
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func wsServer(t *testing.T, reply ws.SubmitResponse) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var req ws.SubmitRequest
		if err := conn.ReadJSON(&req); err != nil {
			t.Errorf("read: %v", err)
			return
		}
		if req.Action != ws.ActionSubmit || req.Submission == nil || req.Submission.ExamID != "e1" {
			raw, _ := json.Marshal(req)
			t.Errorf("unexpected request %s", raw)
		}
		conn.WriteJSON(reply)
	}))
}

func TestWSTransportAccepted(t *testing.T) {
	srv := wsServer(t, ws.SubmitResponse{Event: ws.EventAccepted, Message: "stored"})
	defer srv.Close()

	resp, err := NewWSTransport(srv.URL, "tok").Deliver(context.Background(), sampleSubmission())
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if !resp.Success || resp.Message != "stored" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestWSTransportRejected(t *testing.T) {
	srv := wsServer(t, ws.SubmitResponse{Event: ws.EventRejected, Message: "already closed"})
	defer srv.Close()

	_, err := NewWSTransport(srv.URL, "tok").Deliver(context.Background(), sampleSubmission())
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestWSTransportHandshakeRefused(t *testing.T) {
	srv := wsServer(t, ws.SubmitResponse{})
	defer srv.Close()

	_, err := NewWSTransport(srv.URL, "wrong").Deliver(context.Background(), sampleSubmission())
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected handshake refusal to reject, got %v", err)
	}
}

func TestWSTransportServerError(t *testing.T) {
	srv := wsServer(t, ws.SubmitResponse{Event: ws.EventError, Error: "queue down"})
	defer srv.Close()

	_, err := NewWSTransport(srv.URL, "tok").Deliver(context.Background(), sampleSubmission())
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}
