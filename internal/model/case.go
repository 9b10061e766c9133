package model

import "time"

type CaseStatus string

const (
	CaseActive CaseStatus = "active"
	CaseClosed CaseStatus = "closed"
)

// Case groups the interviews a subject ran about one health concern
type Case struct {
	ID          string     `json:"id" bson:"_id,omitempty"`
	Owner       string     `json:"owner" bson:"owner"`
	Title       string     `json:"title" bson:"title"`
	Description string     `json:"description,omitempty" bson:"description,omitempty"`
	Status      CaseStatus `json:"status" bson:"status"`
	Interviews  []string   `json:"interviews" bson:"interviews"`
	Results     []string   `json:"results" bson:"results"` // Completed interviews
	CreatedAt   time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// IsClosed reports whether the case accepts no new interviews
func (c *Case) IsClosed() bool {
	return c.Status == CaseClosed
}

// CreateCaseRequest is the request body for opening a case
type CreateCaseRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// UpdateCaseRequest is the request body for editing a case. Nil fields are left as they are.
type UpdateCaseRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}
