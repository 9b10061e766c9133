package service

import (
	"context"
	"fmt"
	"strings"

	"wellpath/internal/model"
)

// Websocket event types
const (
	EventQuestionReady      = "question_ready"
	EventInterviewCompleted = "interview_completed"
)

// NextStep consults the reasoning service once the predefined queue is used
// up. Reasoning failures end the interview's questioning with a complete
// outcome instead of surfacing an error.
func (s *InterviewService) NextStep(ctx context.Context, interviewID, owner string) (*model.StepOutcome, error) {
	var out *model.StepOutcome
	err := s.withLock(ctx, interviewID, func() error {
		var err error
		out, err = s.nextStep(ctx, interviewID, owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *InterviewService) nextStep(ctx context.Context, interviewID, owner string) (*model.StepOutcome, error) {
	iv, err := s.load(ctx, interviewID, owner)
	if err != nil {
		return nil, err
	}
	if iv.IsCompleted() {
		return &model.StepOutcome{Outcome: model.OutcomeComplete, Conclusion: iv.Result}, nil
	}

	if path, ok := s.needsSplice(iv); ok {
		splice(iv, path)
		if err := s.interviews.SaveProgress(ctx, iv); err != nil {
			return nil, storageErr("splice question sets", err)
		}
	}
	if q := iv.CurrentQuestion(); q != nil {
		out := q.Clone()
		return &model.StepOutcome{Outcome: model.OutcomePending, Question: &out}, nil
	}

	log := s.log.With().Str("interview", interviewID).Logger()

	if iv.GeneratedCount()+1 > s.cfg.QuestionBudget {
		log.Info().Int("budget", s.cfg.QuestionBudget).Msg("question budget reached")
		return &model.StepOutcome{Outcome: model.OutcomeComplete}, nil
	}

	step, err := s.reasoner.NextQuestion(ctx, iv.Transcript())
	if err != nil {
		log.Warn().Err(err).Msg("reasoning service failed, completing interview")
		return &model.StepOutcome{Outcome: model.OutcomeComplete}, nil
	}
	if step == nil {
		log.Warn().Msg("reasoning service returned nothing, completing interview")
		return &model.StepOutcome{Outcome: model.OutcomeComplete}, nil
	}

	if step.Conclusion != nil {
		c, err := s.normalizeConclusion(step.Conclusion)
		if err != nil {
			log.Warn().Err(err).Msg("malformed conclusion, completing interview")
			return &model.StepOutcome{Outcome: model.OutcomeComplete}, nil
		}
		if err := s.interviews.Complete(ctx, iv, c); err != nil {
			return nil, storageErr("record conclusion", err)
		}
		log.Info().Msg("interview concluded by reasoning service")
		s.recordCaseResult(ctx, iv)
		s.broadcast(interviewID, EventInterviewCompleted, c)
		return &model.StepOutcome{Outcome: model.OutcomeComplete, Conclusion: c}, nil
	}

	if step.Question == nil {
		log.Warn().Msg("reasoning service returned neither question nor conclusion")
		return &model.StepOutcome{Outcome: model.OutcomeComplete}, nil
	}

	q, err := normalizeGenerated(*step.Question)
	if err != nil {
		log.Warn().Err(err).Msg("malformed generated question, completing interview")
		return &model.StepOutcome{Outcome: model.OutcomeComplete}, nil
	}
	q.ID = iv.NextGeneratedID()

	if err := s.interviews.AppendQuestion(ctx, iv, q); err != nil {
		return nil, storageErr("append generated question", err)
	}

	log.Info().Str("question", q.ID).Int("generated", iv.GeneratedCount()).Msg("question generated")
	s.broadcast(interviewID, EventQuestionReady, q)

	out := q.Clone()
	return &model.StepOutcome{Outcome: model.OutcomeGenerated, Question: &out}, nil
}

// GenerateConclusion asks the reasoning service for the final result and
// completes the interview. Errors leave the interview active so the call can
// be retried. A completed interview returns its stored result.
func (s *InterviewService) GenerateConclusion(ctx context.Context, interviewID, owner string) (*model.Conclusion, error) {
	var out *model.Conclusion
	err := s.withLock(ctx, interviewID, func() error {
		iv, err := s.load(ctx, interviewID, owner)
		if err != nil {
			return err
		}
		if iv.IsCompleted() && iv.Result != nil {
			out = iv.Result
			return nil
		}

		raw, err := s.reasoner.Conclude(ctx, iv.Transcript())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		c, err := s.normalizeConclusion(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUpstream, err)
		}

		if err := s.interviews.Complete(ctx, iv, c); err != nil {
			return storageErr("record conclusion", err)
		}

		s.log.Info().Str("interview", interviewID).Msg("interview completed")
		s.recordCaseResult(ctx, iv)
		s.broadcast(interviewID, EventInterviewCompleted, c)
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *InterviewService) normalizeConclusion(c *model.Conclusion) (*model.Conclusion, error) {
	if c == nil {
		return nil, fmt.Errorf("no conclusion")
	}
	summary := strings.TrimSpace(c.Summary)
	if summary == "" {
		return nil, fmt.Errorf("conclusion has no summary")
	}
	suggestions := make([]string, 0, len(c.Suggestions))
	for _, sg := range c.Suggestions {
		if sg = strings.TrimSpace(sg); sg != "" {
			suggestions = append(suggestions, sg)
		}
	}
	return &model.Conclusion{
		Summary:     summary,
		Suggestions: suggestions,
		Extended:    c.Extended,
		GeneratedAt: s.now(),
	}, nil
}

// normalizeGenerated checks the shape of a reasoning-service question and
// strips anything the service must not control.
func normalizeGenerated(q model.QuestionRecord) (model.QuestionRecord, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return model.QuestionRecord{}, fmt.Errorf("question has no text")
	}
	if !q.Kind.Valid() {
		return model.QuestionRecord{}, fmt.Errorf("unknown question kind %q", q.Kind)
	}

	var options []string
	if q.Kind.RequiresOptions() {
		if len(q.Options) == 0 {
			return model.QuestionRecord{}, fmt.Errorf("%s question has no options", q.Kind)
		}
		if len(q.Options) > model.MaxGeneratedOptions {
			return model.QuestionRecord{}, fmt.Errorf("%d options exceed the limit of %d", len(q.Options), model.MaxGeneratedOptions)
		}
		seen := make(map[string]bool, len(q.Options))
		for _, o := range q.Options {
			o = strings.TrimSpace(o)
			if o == "" || seen[o] {
				return model.QuestionRecord{}, fmt.Errorf("blank or duplicate option %q", o)
			}
			seen[o] = true
			options = append(options, o)
		}
	} else if len(q.Options) > 0 {
		return model.QuestionRecord{}, fmt.Errorf("%s question must not carry options", q.Kind)
	}

	return model.QuestionRecord{
		Text:       text,
		Kind:       q.Kind,
		Options:    options,
		Category:   q.Category,
		Predefined: false,
	}, nil
}

// recordCaseResult notes a completed interview on its case. The interview
// already holds the result so a failure here is only logged.
func (s *InterviewService) recordCaseResult(ctx context.Context, iv *model.Interview) {
	if iv.CaseID == "" {
		return
	}
	if err := s.cases.AddResult(ctx, iv.CaseID, iv.ID); err != nil {
		s.log.Warn().Err(err).Str("interview", iv.ID).Str("case", iv.CaseID).Msg("record result on case failed")
	}
}

func (s *InterviewService) broadcast(interviewID, msgType string, payload interface{}) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastToInterview(interviewID, msgType, payload)
}
