package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"wellpath/internal/model"
	"wellpath/internal/repository"
)

// CaseService handles case bookkeeping
type CaseService struct {
	cases      repository.CaseRepo
	interviews repository.InterviewRepo
	log        zerolog.Logger
}

// NewCaseService creates a new case service
func NewCaseService(cases repository.CaseRepo, interviews repository.InterviewRepo, logger zerolog.Logger) *CaseService {
	return &CaseService{
		cases:      cases,
		interviews: interviews,
		log:        logger.With().Str("component", "case").Logger(),
	}
}

// Create opens a case for owner
func (s *CaseService) Create(ctx context.Context, owner string, req *model.CreateCaseRequest) (*model.Case, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, invalid("title is required")
	}

	c := &model.Case{
		Owner:       owner,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Status:      model.CaseActive,
	}
	if _, err := s.cases.Create(ctx, c); err != nil {
		return nil, storageErr("create case", err)
	}

	s.log.Info().Str("case", c.ID).Str("owner", owner).Msg("case created")
	return c, nil
}

// Get returns a case owned by owner
func (s *CaseService) Get(ctx context.Context, id, owner string) (*model.Case, error) {
	c, err := s.cases.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr("load case", err)
	}
	if c == nil {
		return nil, ErrNotFound
	}
	if c.Owner != owner {
		return nil, ErrForbidden
	}
	return c, nil
}

// List returns the owner's cases, most recently updated first
func (s *CaseService) List(ctx context.Context, owner string) ([]*model.Case, error) {
	cases, err := s.cases.ListByOwner(ctx, owner)
	if err != nil {
		return nil, storageErr("list cases", err)
	}
	return cases, nil
}

// Update edits the title and description of a case. An empty title is rejected.
func (s *CaseService) Update(ctx context.Context, id, owner string, req *model.UpdateCaseRequest) (*model.Case, error) {
	c, err := s.Get(ctx, id, owner)
	if err != nil {
		return nil, err
	}

	var fields repository.CaseFields
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, invalid("title is required")
		}
		fields.Title = &title
		c.Title = title
	}
	if req.Description != nil {
		desc := strings.TrimSpace(*req.Description)
		fields.Description = &desc
		c.Description = desc
	}
	if fields.Title == nil && fields.Description == nil {
		return c, nil
	}

	if err := s.cases.Update(ctx, id, fields); err != nil {
		return nil, storageErr("update case", err)
	}
	return s.reload(ctx, id, c)
}

// Close marks a case closed. Closed cases accept no new interviews.
func (s *CaseService) Close(ctx context.Context, id, owner string) (*model.Case, error) {
	return s.setStatus(ctx, id, owner, model.CaseClosed)
}

// Reopen marks a closed case active again
func (s *CaseService) Reopen(ctx context.Context, id, owner string) (*model.Case, error) {
	return s.setStatus(ctx, id, owner, model.CaseActive)
}

func (s *CaseService) setStatus(ctx context.Context, id, owner string, status model.CaseStatus) (*model.Case, error) {
	c, err := s.Get(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if c.Status == status {
		return c, nil
	}

	if err := s.cases.SetStatus(ctx, id, status); err != nil {
		return nil, storageErr("set case status", err)
	}
	s.log.Info().Str("case", id).Str("status", string(status)).Msg("case status changed")

	c.Status = status
	return s.reload(ctx, id, c)
}

// Delete removes a case. Its interviews are kept and still carry the case id.
func (s *CaseService) Delete(ctx context.Context, id, owner string) error {
	if _, err := s.Get(ctx, id, owner); err != nil {
		return err
	}
	if err := s.cases.Delete(ctx, id); err != nil {
		return storageErr("delete case", err)
	}
	s.log.Info().Str("case", id).Str("owner", owner).Msg("case deleted")
	return nil
}

// Interviews lists the interviews started under a case, most recently updated first
func (s *CaseService) Interviews(ctx context.Context, id, owner string) ([]*model.InterviewSummary, error) {
	if _, err := s.Get(ctx, id, owner); err != nil {
		return nil, err
	}
	list, err := s.interviews.ListByCase(ctx, id)
	if err != nil {
		return nil, storageErr("list case interviews", err)
	}
	return list, nil
}

// reload fetches the stored case after a write, falling back to the locally
// patched copy if it vanished in between.
func (s *CaseService) reload(ctx context.Context, id string, fallback *model.Case) (*model.Case, error) {
	c, err := s.cases.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr("load case", err)
	}
	if c == nil {
		return fallback, nil
	}
	return c, nil
}
