package model

import "encoding/json"

// Outcome tells the caller what to do next
type Outcome string

const (
	OutcomePending   Outcome = "pending"   // A question is waiting for an answer
	OutcomeExhausted Outcome = "exhausted" // Predefined queue empty, consult the fallback
	OutcomeGenerated Outcome = "generated" // The fallback appended a new question
	OutcomeComplete  Outcome = "complete"  // Stop asking, fetch the conclusion
)

// QuestionOutcome is returned by the current-question scan
type QuestionOutcome struct {
	Outcome  Outcome         `json:"outcome"`
	Question *QuestionRecord `json:"question,omitempty"`
}

// StepOutcome is returned by the fallback and by answer submission
type StepOutcome struct {
	Outcome    Outcome         `json:"outcome"`
	Question   *QuestionRecord `json:"nextQuestion,omitempty"`
	Conclusion *Conclusion     `json:"conclusion,omitempty"`
}

// ReasonerStep is what the reasoning service produced for a transcript.
// Exactly one of Question and Conclusion is set.
type ReasonerStep struct {
	Question   *QuestionRecord
	Conclusion *Conclusion
}

// StartResponse is returned when an interview is initialized
type StartResponse struct {
	InterviewID   string          `json:"interviewId"`
	FirstQuestion *QuestionRecord `json:"firstQuestion"`
}

// StartRequest is the request body for starting an interview
type StartRequest struct {
	CaseID string `json:"caseId,omitempty"`
}

// AnswerRequest is the request body for submitting an answer. PendingQuestion
// is client-side case context and is ignored by the engine.
type AnswerRequest struct {
	QuestionID      string          `json:"questionId"`
	Answer          *Answer         `json:"answer"`
	PendingQuestion json.RawMessage `json:"pendingQuestion,omitempty"`
}
