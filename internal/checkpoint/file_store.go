package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/stemsi/exstem-session/internal/model"
)

// FileStore keeps one JSON file per (user, exam) in a directory.
// Writes go to a temp file in the same directory, are fsynced, then renamed
// over the target so a crash leaves either the old or the new record.
type FileStore struct {
	dir string
}

type submittedMarker struct {
	UserID      string    `json:"user_id"`
	ExamID      string    `json:"exam_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Put(ctx context.Context, cp *model.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	return s.writeAtomic(ctx, s.checkpointPath(cp.UserID, cp.ExamID), data)
}

func (s *FileStore) Get(_ context.Context, userID, examID string) (*model.Checkpoint, error) {
	data, err := os.ReadFile(s.checkpointPath(userID, examID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint file: %w", err)
	}
	return &cp, nil
}

func (s *FileStore) Delete(_ context.Context, userID, examID string) error {
	err := os.Remove(s.checkpointPath(userID, examID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return s.syncDir()
}

func (s *FileStore) MarkSubmitted(ctx context.Context, userID, examID string, at time.Time) error {
	data, err := json.Marshal(submittedMarker{UserID: userID, ExamID: examID, SubmittedAt: at})
	if err != nil {
		return err
	}
	if err := s.writeAtomic(ctx, s.markerPath(userID, examID), data); err != nil {
		return err
	}
	return s.Delete(ctx, userID, examID)
}

func (s *FileStore) IsSubmitted(_ context.Context, userID, examID string) (bool, error) {
	_, err := os.Stat(s.markerPath(userID, examID))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *FileStore) writeAtomic(ctx context.Context, target string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return s.syncDir()
}

// syncDir flushes the directory entry so a rename survives power loss.
// Platforms that cannot fsync a directory report an error we ignore.
func (s *FileStore) syncDir() error {
	d, err := os.Open(s.dir)
	if err != nil {
		return nil
	}
	defer d.Close()
	_ = d.Sync()
	return nil
}

func (s *FileStore) checkpointPath(userID, examID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("exam_backup_user_%s_exam_%s.json", url.PathEscape(userID), url.PathEscape(examID)))
}

func (s *FileStore) markerPath(userID, examID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("exam_submitted_user_%s_exam_%s.json", url.PathEscape(userID), url.PathEscape(examID)))
}

// Claim creates the lease file with O_EXCL so two clients racing for a free
// lease cannot both win. An expired lease is removed and the create retried.
func (s *FileStore) Claim(ctx context.Context, l *Lease, now time.Time) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal lease: %w", err)
	}
	path := s.leasePath(l.UserID, l.ExamID)

	for attempt := 0; attempt < 3; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			if _, err := f.Write(data); err != nil {
				f.Close()
				_ = os.Remove(path)
				return fmt.Errorf("write lease file: %w", err)
			}
			if err := f.Sync(); err != nil {
				f.Close()
				_ = os.Remove(path)
				return fmt.Errorf("sync lease file: %w", err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close lease file: %w", err)
			}
			return s.syncDir()
		}
		if !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("create lease file: %w", err)
		}

		cur, err := s.readLease(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			continue
		case err != nil:
			// A torn lease file cannot name its holder; treat it as expired.
		case cur.Holder == l.Holder:
			return s.writeAtomic(ctx, path, data)
		case now.Before(cur.ExpiresAt):
			return fmt.Errorf("%w: %s until %s", ErrLeaseHeld, cur.Holder, cur.ExpiresAt.Format(time.RFC3339))
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove expired lease: %w", err)
		}
	}
	return ErrLeaseHeld
}

func (s *FileStore) Release(_ context.Context, userID, examID, holder string) error {
	path := s.leasePath(userID, examID)
	if holder != "" {
		cur, err := s.readLease(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err == nil && cur.Holder != holder {
			return nil
		}
	}
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return s.syncDir()
}

func (s *FileStore) readLease(path string) (*Lease, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var l Lease
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("decode lease file: %w", err)
	}
	return &l, nil
}

func (s *FileStore) leasePath(userID, examID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("exam_lease_user_%s_exam_%s.json", url.PathEscape(userID), url.PathEscape(examID)))
}
