package service

import "wellpath/internal/model"

// ValidateAnswer checks a submitted answer against the question's kind.
// It never mutates the question.
func ValidateAnswer(q *model.QuestionRecord, a *model.Answer) error {
	if a == nil {
		return invalid("answer is required")
	}

	switch q.Kind {
	case model.KindFreeText:
		if a.IsList {
			return invalid("question %s expects a text answer", q.ID)
		}
		return nil

	case model.KindSingleChoice:
		if a.IsList {
			return invalid("question %s expects a single choice", q.ID)
		}
		if !q.HasOption(a.Text) {
			return invalid("invalid choice")
		}
		return nil

	case model.KindMultiChoice:
		if !a.IsList {
			return invalid("question %s expects a list of choices", q.ID)
		}
		if len(a.Choices) == 0 && !q.AllowEmpty {
			return invalid("question %s requires at least one choice", q.ID)
		}
		seen := make(map[string]bool, len(a.Choices))
		for _, c := range a.Choices {
			if !q.HasOption(c) {
				return invalid("invalid choice %q", c)
			}
			if seen[c] {
				return invalid("duplicate choice %q", c)
			}
			seen[c] = true
		}
		return nil
	}

	return invalid("question %s has unknown kind %q", q.ID, q.Kind)
}
