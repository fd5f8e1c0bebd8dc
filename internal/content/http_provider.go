package content

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/stemsi/exstem-session/internal/hubclient"
	"github.com/stemsi/exstem-session/internal/model"
)

// HTTPProvider fetches the paper from the hub.
type HTTPProvider struct {
	client *hubclient.Client
}

// NewHTTPProvider creates a new HTTPProvider.
func NewHTTPProvider(client *hubclient.Client) *HTTPProvider {
	return &HTTPProvider{client: client}
}

func (p *HTTPProvider) Load(ctx context.Context, examID string) (*model.ExamContent, error) {
	var exam model.ExamContent
	err := p.client.Do(ctx, http.MethodGet, "/api/v1/exams/"+url.PathEscape(examID)+"/paper", nil, &exam)
	if err != nil {
		var se *hubclient.StatusError
		if errors.As(err, &se) && se.Status == http.StatusNotFound {
			return nil, loadError(examID, ErrNotFound)
		}
		return nil, loadError(examID, err)
	}
	if err := Prepare(&exam, examID); err != nil {
		return nil, err
	}
	return &exam, nil
}
