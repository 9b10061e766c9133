package model

// QuestionKind defines how a question is answered
type QuestionKind string

const (
	KindFreeText     QuestionKind = "freeText"     // Any string
	KindSingleChoice QuestionKind = "singleChoice" // Exactly one of Options
	KindMultiChoice  QuestionKind = "multiChoice"  // Subset of Options
)

// MaxGeneratedOptions caps the option list of reasoning-service questions.
// Catalog questions are not bounded.
const MaxGeneratedOptions = 5

// RequiresOptions reports whether the kind carries an option list
func (k QuestionKind) RequiresOptions() bool {
	return k == KindSingleChoice || k == KindMultiChoice
}

// Valid reports whether k is one of the known kinds
func (k QuestionKind) Valid() bool {
	switch k {
	case KindFreeText, KindSingleChoice, KindMultiChoice:
		return true
	}
	return false
}

// ParseQuestionKind accepts both the stored vocabulary and the wire vocabulary
// used by the reasoning service ("text", "choice", "multiselect").
func ParseQuestionKind(s string) (QuestionKind, bool) {
	switch s {
	case "freeText", "text":
		return KindFreeText, true
	case "singleChoice", "choice":
		return KindSingleChoice, true
	case "multiChoice", "multiselect":
		return KindMultiChoice, true
	}
	return "", false
}

// QuestionRecord is one entry in an interview's ordered question list
type QuestionRecord struct {
	ID         string       `json:"id" bson:"id"` // "q1", "demo_age", "q12"
	Text       string       `json:"text" bson:"text"`
	Kind       QuestionKind `json:"kind" bson:"kind"`
	Options    []string     `json:"options,omitempty" bson:"options,omitempty"`
	AllowEmpty bool         `json:"allowEmpty,omitempty" bson:"allowEmpty,omitempty"` // multiChoice only
	Category   string       `json:"category,omitempty" bson:"category,omitempty"`
	Answer     *Answer      `json:"answer,omitempty" bson:"answer,omitempty"`
	Predefined bool         `json:"sourceIsPredefined" bson:"sourceIsPredefined"`
}

// Answered reports whether an answer has been recorded
func (q *QuestionRecord) Answered() bool {
	return q.Answer != nil
}

// HasOption reports whether s is exactly one of the options
func (q *QuestionRecord) HasOption(s string) bool {
	for _, o := range q.Options {
		if o == s {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so catalog data never aliases interview state
func (q QuestionRecord) Clone() QuestionRecord {
	out := q
	if q.Options != nil {
		out.Options = append([]string(nil), q.Options...)
	}
	if q.Answer != nil {
		a := q.Answer.Clone()
		out.Answer = &a
	}
	return out
}

// CloneQuestions deep-copies a question list
func CloneQuestions(qs []QuestionRecord) []QuestionRecord {
	if qs == nil {
		return nil
	}
	out := make([]QuestionRecord, len(qs))
	for i := range qs {
		out[i] = qs[i].Clone()
	}
	return out
}
