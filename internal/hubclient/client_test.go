package hubclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDoDecodesEnvelopeData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"name":"physics"},"metadata":{"request_id":"r1"}}`))
	}))
	defer srv.Close()

	var out struct {
		Name string `json:"name"`
	}
	c := New(srv.URL+"/", "tok", srv.Client())
	if err := c.Do(context.Background(), http.MethodGet, "/x", nil, &out); err != nil {
		t.Fatalf("do: %v", err)
	}
	if out.Name != "physics" {
		t.Fatalf("expected physics, got %q", out.Name)
	}
}

func TestDoReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"data":null,"error":{"code":"VALIDATION_ERROR","message":"bad"}}`))
	}))
	defer srv.Close()

	err := New(srv.URL, "", srv.Client()).Do(context.Background(), http.MethodPost, "/x", map[string]string{"a": "b"}, nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.Status != 422 || se.Code != "VALIDATION_ERROR" || se.Temporary() {
		t.Fatalf("unexpected status error %+v", se)
	}
}

func TestDoUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := New(url, "", nil).Do(context.Background(), http.MethodGet, "/x", nil, nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
