package service

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/content"
	"github.com/stemsi/exstem-session/internal/model"
)

// PaperService serves and publishes exam papers cached in Redis.
type PaperService struct {
	papers *content.RedisProvider
	log    zerolog.Logger
}

// NewPaperService creates a new PaperService.
func NewPaperService(papers *content.RedisProvider, log zerolog.Logger) *PaperService {
	return &PaperService{
		papers: papers,
		log:    log.With().Str("component", "paper_service").Logger(),
	}
}

// Paper returns the validated paper. Errors are *content.LoadError.
func (s *PaperService) Paper(ctx context.Context, examID string) (*model.ExamContent, error) {
	return s.papers.Load(ctx, examID)
}

// Publish validates exam and caches it under examID.
func (s *PaperService) Publish(ctx context.Context, examID string, exam *model.ExamContent) error {
	if err := content.Prepare(exam, examID); err != nil {
		return err
	}
	if err := s.papers.Publish(ctx, exam); err != nil {
		return err
	}
	s.log.Info().Str("exam_id", examID).Int("questions", len(exam.Questions)).Msg("Exam paper published")
	return nil
}
