package subjects

import (
	"context"
	"errors"
	"strings"
)

type Service struct {
	Repo Repo
}

func NewService(repo Repo) *Service {
	return &Service{Repo: repo}
}

func (s *Service) Upsert(ctx context.Context, subject Subject) error {
	if s == nil || s.Repo == nil {
		return errors.New("subjects service not configured")
	}
	if strings.TrimSpace(subject.ID) == "" {
		return errors.New("subject id is required")
	}
	return s.Repo.Upsert(ctx, subject)
}

func (s *Service) ListActive(ctx context.Context) ([]Subject, error) {
	if s == nil || s.Repo == nil {
		return nil, errors.New("subjects service not configured")
	}
	return s.Repo.ListActive(ctx)
}

func (s *Service) GetByID(ctx context.Context, subjectID string) (Subject, error) {
	if s == nil || s.Repo == nil {
		return Subject{}, errors.New("subjects service not configured")
	}
	if strings.TrimSpace(subjectID) == "" {
		return Subject{}, errors.New("subject id is required")
	}
	return s.Repo.GetByID(ctx, subjectID)
}
