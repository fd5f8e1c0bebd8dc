package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/stemsi/exstem-session/internal/model"
	"gopkg.in/yaml.v3"
)

// FileProvider reads papers from a local directory for offline labs.
// It looks for {examID}.json, {examID}.yaml and {examID}.yml in that order.
type FileProvider struct {
	dir string
}

// NewFileProvider creates a new FileProvider.
func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{dir: dir}
}

func (p *FileProvider) Load(_ context.Context, examID string) (*model.ExamContent, error) {
	if examID == "" || strings.ContainsAny(examID, `/\`) || examID == "." || examID == ".." {
		return nil, invalid(examID, "id", "exam id is not a valid file name")
	}

	for _, ext := range []string{".json", ".yaml", ".yml"} {
		path := filepath.Join(p.dir, examID+ext)
		exam, err := DecodeFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, loadError(examID, err)
		}
		if err := Prepare(exam, examID); err != nil {
			return nil, err
		}
		return exam, nil
	}
	return nil, loadError(examID, ErrNotFound)
}

// DecodeFile parses a JSON or YAML paper without validating it.
func DecodeFile(path string) (*model.ExamContent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var exam model.ExamContent
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &exam)
	default:
		err = json.Unmarshal(data, &exam)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalid, filepath.Base(path), err)
	}
	return &exam, nil
}
