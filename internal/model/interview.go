package model

import (
	"strconv"
	"time"
)

type InterviewStatus string

const (
	InterviewActive    InterviewStatus = "active"
	InterviewCompleted InterviewStatus = "completed"
)

// Path is the branch chosen by the root question
type Path string

const (
	PathUnset         Path = ""
	PathGeneralHealth Path = "generalHealth"
	PathFeelingUnwell Path = "feelingUnwell"
)

// Staging keys for predefined question sets that have not been spliced yet
const (
	SetDemographics  = "demographics"
	SetGeneralHealth = string(PathGeneralHealth)
	SetFeelingUnwell = string(PathFeelingUnwell)
)

// RootQuestionID is the branching question every interview starts with
const RootQuestionID = "q1"

// Conclusion is the final result produced by the reasoning service
type Conclusion struct {
	Summary     string                 `json:"summary" bson:"summary"`
	Suggestions []string               `json:"suggestions" bson:"suggestions"`
	Extended    map[string]interface{} `json:"extended,omitempty" bson:"extended,omitempty"` // Opaque pass-through
	GeneratedAt time.Time              `json:"generatedAt" bson:"generatedAt"`
}

// Interview is one questionnaire session for one subject
type Interview struct {
	ID          string                      `json:"id" bson:"_id,omitempty"`
	Owner       string                      `json:"owner" bson:"owner"`
	CaseID      string                      `json:"caseId,omitempty" bson:"caseId,omitempty"`
	Status      InterviewStatus             `json:"status" bson:"status"`
	CurrentPath Path                        `json:"currentPath" bson:"currentPath"`
	Questions   []QuestionRecord            `json:"questions" bson:"questions"`
	PendingSets map[string][]QuestionRecord `json:"pendingQuestionSets,omitempty" bson:"pendingQuestionSets,omitempty"`
	Result      *Conclusion                 `json:"result,omitempty" bson:"result,omitempty"`
	CatalogVer  string                      `json:"catalogVersion" bson:"catalogVersion"`
	Version     int64                       `json:"version" bson:"version"` // Compare-and-swap token
	CreatedAt   time.Time                   `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time                   `json:"updatedAt" bson:"updatedAt"`
}

// IsCompleted reports whether the interview reached its terminal state
func (iv *Interview) IsCompleted() bool {
	return iv.Status == InterviewCompleted
}

// FindQuestion returns the index of the question with the given id, or -1
func (iv *Interview) FindQuestion(id string) int {
	for i := range iv.Questions {
		if iv.Questions[i].ID == id {
			return i
		}
	}
	return -1
}

// CurrentQuestion returns the first question lacking an answer
func (iv *Interview) CurrentQuestion() *QuestionRecord {
	for i := range iv.Questions {
		if !iv.Questions[i].Answered() {
			return &iv.Questions[i]
		}
	}
	return nil
}

// GeneratedCount counts reasoning-service questions already appended
func (iv *Interview) GeneratedCount() int {
	n := 0
	for i := range iv.Questions {
		if !iv.Questions[i].Predefined {
			n++
		}
	}
	return n
}

// NextGeneratedID computes the id for the next appended question
func (iv *Interview) NextGeneratedID() string {
	return "q" + strconv.Itoa(len(iv.Questions)+1)
}

// Transcript returns the ordered question/answer history
func (iv *Interview) Transcript() []TranscriptEntry {
	out := make([]TranscriptEntry, 0, len(iv.Questions))
	for _, q := range iv.Questions {
		out = append(out, TranscriptEntry{
			ID:       q.ID,
			Question: q.Text,
			Kind:     q.Kind,
			Options:  q.Options,
			Answer:   q.Answer.String(),
			Answered: q.Answered(),
		})
	}
	return out
}

// TranscriptEntry is one question/answer pair handed to the reasoning service
type TranscriptEntry struct {
	ID       string       `json:"id"`
	Question string       `json:"question"`
	Kind     QuestionKind `json:"kind"`
	Options  []string     `json:"options,omitempty"`
	Answer   string       `json:"answer,omitempty"`
	Answered bool         `json:"answered"`
}

// InterviewSummary is the list view of an interview
type InterviewSummary struct {
	ID          string          `json:"id" bson:"_id"`
	CaseID      string          `json:"caseId,omitempty" bson:"caseId,omitempty"`
	Status      InterviewStatus `json:"status" bson:"status"`
	CurrentPath Path            `json:"currentPath" bson:"currentPath"`
	CreatedAt   time.Time       `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt" bson:"updatedAt"`
}
