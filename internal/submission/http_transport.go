package submission

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/stemsi/exstem-session/internal/hubclient"
	"github.com/stemsi/exstem-session/internal/model"
)

// HTTPTransport posts submissions to the hub REST API.
type HTTPTransport struct {
	client *hubclient.Client
}

// NewHTTPTransport creates a new HTTPTransport.
func NewHTTPTransport(client *hubclient.Client) *HTTPTransport {
	return &HTTPTransport{client: client}
}

func (t *HTTPTransport) Deliver(ctx context.Context, s *model.Submission) (*model.SubmissionResponse, error) {
	path := "/api/v1/exams/" + url.PathEscape(s.ExamID) + "/submissions"

	var resp model.SubmissionResponse
	err := t.client.Do(ctx, http.MethodPost, path, s, &resp)
	if err != nil {
		var se *hubclient.StatusError
		if errors.As(err, &se) && !se.Temporary() {
			msg := se.Message
			if msg == "" {
				msg = se.Error()
			}
			return nil, &RejectedError{Message: msg}
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	if !resp.Success {
		return nil, &RejectedError{Message: resp.Message}
	}
	return &resp, nil
}
