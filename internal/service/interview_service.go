package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"wellpath/internal/cache"
	"wellpath/internal/catalog"
	"wellpath/internal/config"
	"wellpath/internal/model"
	"wellpath/internal/repository"
)

// Reasoner is the external reasoning service. Given the ordered transcript it
// produces either one more question or a conclusion.
type Reasoner interface {
	NextQuestion(ctx context.Context, transcript []model.TranscriptEntry) (*model.ReasonerStep, error)
	Conclude(ctx context.Context, transcript []model.TranscriptEntry) (*model.Conclusion, error)
}

// InterviewService drives the intake questionnaire: branch splicing on the
// root answer, predefined traversal and the reasoning fallback.
type InterviewService struct {
	interviews  repository.InterviewRepo
	cases       repository.CaseRepo
	catalog     *catalog.Catalog
	reasoner    Reasoner
	lock        cache.InterviewLock
	broadcaster Broadcaster
	cfg         config.InterviewConfig
	log         zerolog.Logger
	now         func() time.Time
}

// NewInterviewService creates a new interview service
func NewInterviewService(
	interviews repository.InterviewRepo,
	cases repository.CaseRepo,
	cat *catalog.Catalog,
	reasoner Reasoner,
	cfg config.InterviewConfig,
	logger zerolog.Logger,
) *InterviewService {
	if cfg.QuestionBudget <= 0 {
		cfg.QuestionBudget = config.DefaultInterviewConfig().QuestionBudget
	}
	return &InterviewService{
		interviews: interviews,
		cases:      cases,
		catalog:    cat,
		reasoner:   reasoner,
		cfg:        cfg,
		log:        logger.With().Str("component", "interview").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetLocker enables cross-instance serialisation of interview updates
func (s *InterviewService) SetLocker(l cache.InterviewLock) {
	s.lock = l
}

// SetBroadcaster sets the broadcaster for WebSocket events
func (s *InterviewService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Initialize creates an interview seeded with the root question. When caseID
// is set the case must belong to owner, be open, and gets the interview linked.
func (s *InterviewService) Initialize(ctx context.Context, owner, caseID string) (*model.StartResponse, error) {
	if owner == "" {
		return nil, invalid("owner is required")
	}

	if caseID != "" {
		c, err := s.cases.GetByID(ctx, caseID)
		if err != nil {
			return nil, storageErr("load case", err)
		}
		if c == nil {
			return nil, ErrNotFound
		}
		if c.Owner != owner {
			return nil, ErrForbidden
		}
		if c.IsClosed() {
			return nil, invalid("case %s is closed", caseID)
		}
	}

	root := s.catalog.Root()
	iv := &model.Interview{
		Owner:       owner,
		CaseID:      caseID,
		Status:      model.InterviewActive,
		CurrentPath: model.PathUnset,
		Questions:   []model.QuestionRecord{root},
		PendingSets: s.catalog.Staging(),
		CatalogVer:  s.catalog.Version(),
	}

	id, err := s.interviews.Create(ctx, iv)
	if err != nil {
		return nil, storageErr("create interview", err)
	}

	if caseID != "" {
		// The interview carries caseId itself, a missing back-link is repairable
		if err := s.cases.LinkInterview(ctx, caseID, id); err != nil {
			s.log.Warn().Err(err).Str("interview", id).Str("case", caseID).Msg("link interview to case failed")
		}
	}

	s.log.Info().Str("interview", id).Str("owner", owner).Msg("interview started")

	first := root.Clone()
	return &model.StartResponse{InterviewID: id, FirstQuestion: &first}, nil
}

// RecordAnswer validates and stores one answer. Answering the root question
// selects the path and splices the predefined sets for it.
func (s *InterviewService) RecordAnswer(ctx context.Context, interviewID, owner, questionID string, answer *model.Answer) error {
	return s.withLock(ctx, interviewID, func() error {
		iv, err := s.load(ctx, interviewID, owner)
		if err != nil {
			return err
		}
		if iv.IsCompleted() {
			return ErrInterviewCompleted
		}

		idx := iv.FindQuestion(questionID)
		if idx < 0 {
			return ErrNotFound
		}
		q := &iv.Questions[idx]

		if q.Answered() && !s.cfg.AllowOverwrite {
			return invalid("question %s is already answered", questionID)
		}
		if !q.Answered() && iv.CurrentQuestion() != q {
			return invalid("question %s is not the current question", questionID)
		}
		if err := ValidateAnswer(q, answer); err != nil {
			return err
		}

		var path model.Path
		if questionID == model.RootQuestionID {
			p, ok := s.catalog.PathFor(answer.Text)
			if !ok {
				return invalid("unknown branch %q", answer.Text)
			}
			if iv.CurrentPath != model.PathUnset && iv.CurrentPath != p {
				return invalid("path %s is already chosen", iv.CurrentPath)
			}
			path = p
		}

		stored := answer.Clone()
		q.Answer = &stored
		if path != model.PathUnset && iv.CurrentPath == model.PathUnset {
			splice(iv, path)
		}

		if err := s.interviews.SaveProgress(ctx, iv); err != nil {
			return storageErr("save answer", err)
		}

		s.log.Debug().Str("interview", interviewID).Str("question", questionID).Msg("answer recorded")
		return nil
	})
}

// GetCurrentQuestion returns the first unanswered question, or exhausted when
// the predefined queue is used up.
func (s *InterviewService) GetCurrentQuestion(ctx context.Context, interviewID, owner string) (*model.QuestionOutcome, error) {
	iv, err := s.load(ctx, interviewID, owner)
	if err != nil {
		return nil, err
	}
	if iv.IsCompleted() {
		return &model.QuestionOutcome{Outcome: model.OutcomeComplete}, nil
	}

	if q := iv.CurrentQuestion(); q != nil {
		out := q.Clone()
		return &model.QuestionOutcome{Outcome: model.OutcomePending, Question: &out}, nil
	}

	if _, ok := s.needsSplice(iv); ok {
		var out *model.QuestionOutcome
		err := s.withLock(ctx, interviewID, func() error {
			var err error
			out, err = s.spliceDeferred(ctx, interviewID, owner)
			return err
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	}

	return &model.QuestionOutcome{Outcome: model.OutcomeExhausted}, nil
}

// spliceDeferred repairs an interview whose root answer was stored without
// its sets being spliced. Must run under the interview lock.
func (s *InterviewService) spliceDeferred(ctx context.Context, interviewID, owner string) (*model.QuestionOutcome, error) {
	iv, err := s.load(ctx, interviewID, owner)
	if err != nil {
		return nil, err
	}
	if path, ok := s.needsSplice(iv); ok {
		splice(iv, path)
		if err := s.interviews.SaveProgress(ctx, iv); err != nil {
			return nil, storageErr("splice question sets", err)
		}
		s.log.Info().Str("interview", interviewID).Str("path", string(path)).Msg("deferred splice applied")
	}

	if q := iv.CurrentQuestion(); q != nil {
		out := q.Clone()
		return &model.QuestionOutcome{Outcome: model.OutcomePending, Question: &out}, nil
	}
	return &model.QuestionOutcome{Outcome: model.OutcomeExhausted}, nil
}

// GetAllQuestions returns the full ordered question list
func (s *InterviewService) GetAllQuestions(ctx context.Context, interviewID, owner string) ([]model.QuestionRecord, error) {
	iv, err := s.load(ctx, interviewID, owner)
	if err != nil {
		return nil, err
	}
	return model.CloneQuestions(iv.Questions), nil
}

// GetInterview returns the interview document
func (s *InterviewService) GetInterview(ctx context.Context, interviewID, owner string) (*model.Interview, error) {
	return s.load(ctx, interviewID, owner)
}

// ListInterviews returns the owner's interviews, most recently updated first
func (s *InterviewService) ListInterviews(ctx context.Context, owner string) ([]*model.InterviewSummary, error) {
	list, err := s.interviews.ListByOwner(ctx, owner, 0)
	if err != nil {
		return nil, storageErr("list interviews", err)
	}
	return list, nil
}

// GetConclusion returns the stored result of a completed interview
func (s *InterviewService) GetConclusion(ctx context.Context, interviewID, owner string) (*model.Conclusion, error) {
	iv, err := s.load(ctx, interviewID, owner)
	if err != nil {
		return nil, err
	}
	if iv.Result == nil {
		return nil, ErrNotFound
	}
	return iv.Result, nil
}

// Submit records an answer and reports what comes next: the next pending
// question, a freshly generated one, or completion.
func (s *InterviewService) Submit(ctx context.Context, interviewID, owner, questionID string, answer *model.Answer) (*model.StepOutcome, error) {
	if err := s.RecordAnswer(ctx, interviewID, owner, questionID, answer); err != nil {
		return nil, err
	}

	cur, err := s.GetCurrentQuestion(ctx, interviewID, owner)
	if err != nil {
		return nil, err
	}

	switch cur.Outcome {
	case model.OutcomePending:
		return &model.StepOutcome{Outcome: model.OutcomePending, Question: cur.Question}, nil
	case model.OutcomeComplete:
		return &model.StepOutcome{Outcome: model.OutcomeComplete}, nil
	}
	return s.NextStep(ctx, interviewID, owner)
}

func (s *InterviewService) load(ctx context.Context, interviewID, owner string) (*model.Interview, error) {
	iv, err := s.interviews.GetByID(ctx, interviewID)
	if err != nil {
		return nil, storageErr("load interview", err)
	}
	if iv == nil {
		return nil, ErrNotFound
	}
	if iv.Owner != owner {
		return nil, ErrForbidden
	}
	return iv, nil
}

// withLock runs fn while holding the interview lock, if one is configured
func (s *InterviewService) withLock(ctx context.Context, interviewID string, fn func() error) error {
	if s.lock == nil {
		return fn()
	}
	release, err := s.lock.Acquire(ctx, interviewID)
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			return ErrBusy
		}
		return storageErr("acquire interview lock", err)
	}
	defer release()
	return fn()
}

// needsSplice reports whether the root question is answered but its sets are
// still staged, and which path they belong to.
func (s *InterviewService) needsSplice(iv *model.Interview) (model.Path, bool) {
	if len(iv.PendingSets) == 0 {
		return model.PathUnset, false
	}
	idx := iv.FindQuestion(model.RootQuestionID)
	if idx < 0 || !iv.Questions[idx].Answered() {
		return model.PathUnset, false
	}
	if iv.CurrentPath != model.PathUnset {
		return iv.CurrentPath, true
	}
	return s.catalog.PathFor(iv.Questions[idx].Answer.Text)
}

// splice appends the staged sets for path in order and clears staging. It is
// the only place question sets enter an interview.
func splice(iv *model.Interview, path model.Path) {
	for _, name := range catalog.SpliceOrder(path) {
		iv.Questions = append(iv.Questions, model.CloneQuestions(iv.PendingSets[name])...)
	}
	iv.CurrentPath = path
	iv.PendingSets = nil
}
