package content

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-session/internal/hubclient"
	"github.com/stemsi/exstem-session/internal/model"
)

const yamlPaper = `
id: phys-01
name: Physics midterm
duration_minutes: 60
questions:
  - id: q2
    type: true_false
    prompt: Light is a wave.
    order_num: 2
  - id: q1
    type: single
    prompt: Unit of force?
    options: [Newton, Joule, Watt]
    order_num: 1
  - id: q3
    type: essay
    prompt: Explain inertia.
    options: [ignored]
    order_num: 3
`

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestFileProviderYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "phys-01.yaml", yamlPaper)

	exam, err := NewFileProvider(dir).Load(context.Background(), "phys-01")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if exam.Duration().Minutes() != 60 {
		t.Fatalf("expected 60 minutes, got %s", exam.Duration())
	}
	if exam.Questions[0].ID != "q1" || exam.Questions[2].ID != "q3" {
		t.Fatalf("questions not sorted by order_num: %+v", exam.Questions)
	}
	if exam.Questions[0].Type != model.QuestionTypeSingleChoice {
		t.Fatalf("alias not resolved, got %q", exam.Questions[0].Type)
	}
	if tf := exam.Questions[1]; len(tf.Options) != 2 || !tf.HasOption("True") {
		t.Fatalf("expected default true/false options, got %v", tf.Options)
	}
	if len(exam.Questions[2].Options) != 0 {
		t.Fatalf("essay options should be dropped, got %v", exam.Questions[2].Options)
	}
}

func TestFileProviderMissingAndTraversal(t *testing.T) {
	p := NewFileProvider(t.TempDir())

	_, err := p.Load(context.Background(), "nope")
	var le *LoadError
	if !errors.As(err, &le) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected LoadError wrapping ErrNotFound, got %v", err)
	}

	if _, err := p.Load(context.Background(), "../etc/passwd"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected traversal to be invalid, got %v", err)
	}
}

func TestPrepareRejectsBadContent(t *testing.T) {
	cases := map[string]model.ExamContent{
		"duplicate ids": {ID: "e1", Name: "x", DurationMinutes: 10, Questions: []model.Question{
			{ID: "q1", Type: "essay"}, {ID: "q1", Type: "essay"},
		}},
		"unknown type": {ID: "e1", Name: "x", DurationMinutes: 10, Questions: []model.Question{
			{ID: "q1", Type: "matching"},
		}},
		"choice without options": {ID: "e1", Name: "x", DurationMinutes: 10, Questions: []model.Question{
			{ID: "q1", Type: "single_choice"},
		}},
		"no duration": {ID: "e1", Name: "x", Questions: []model.Question{
			{ID: "q1", Type: "essay"},
		}},
		"no questions": {ID: "e1", Name: "x", DurationMinutes: 10},
		"wrong exam":   {ID: "e2", Name: "x", DurationMinutes: 10, Questions: []model.Question{{ID: "q1", Type: "essay"}}},
	}

	for name, exam := range cases {
		exam := exam
		t.Run(name, func(t *testing.T) {
			err := Prepare(&exam, "e1")
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func validExam() *model.ExamContent {
	return &model.ExamContent{
		ID: "e1", Name: "Chemistry", DurationMinutes: 30,
		Questions: []model.Question{
			{ID: "q1", Type: model.QuestionTypeMultipleChoice, Options: []string{"H", "He", "Li"}},
		},
	}
}

func TestRedisProviderRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	p := NewRedisProvider(rdb)
	ctx := context.Background()

	if _, err := p.Load(ctx, "e1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := p.Publish(ctx, validExam()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	exam, err := p.Load(ctx, "e1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(exam.Questions) != 1 || exam.Questions[0].Type != model.QuestionTypeMultipleChoice {
		t.Fatalf("unexpected exam %+v", exam)
	}
}

func TestHTTPProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/exams/e1/paper":
			data, _ := json.Marshal(map[string]any{"data": validExam()})
			w.Write(data)
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"data":null,"error":{"code":"NOT_FOUND","message":"missing"}}`))
		}
	}))
	defer srv.Close()

	p := NewHTTPProvider(hubclient.New(srv.URL, "tok", srv.Client()))
	exam, err := p.Load(context.Background(), "e1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if exam.Name != "Chemistry" {
		t.Fatalf("unexpected exam %+v", exam)
	}

	if _, err := p.Load(context.Background(), "e2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
