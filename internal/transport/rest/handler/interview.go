package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"wellpath/internal/model"
	"wellpath/internal/service"
	"wellpath/internal/transport/rest/middleware"
)

// InterviewHandler handles interview endpoints
type InterviewHandler struct {
	interviewSvc *service.InterviewService
}

// NewInterviewHandler creates a new interview handler
func NewInterviewHandler(interviewSvc *service.InterviewService) *InterviewHandler {
	return &InterviewHandler{interviewSvc: interviewSvc}
}

// Start handles POST /v1/interviews
func (h *InterviewHandler) Start(w http.ResponseWriter, r *http.Request) {
	owner := middleware.GetOwnerID(r.Context())

	var req model.StartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.interviewSvc.Initialize(r.Context(), owner, req.CaseID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /v1/interviews
func (h *InterviewHandler) List(w http.ResponseWriter, r *http.Request) {
	owner := middleware.GetOwnerID(r.Context())

	list, err := h.interviewSvc.ListInterviews(r.Context(), owner)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"interviews": list})
}

// Questions handles GET /v1/interviews/{id}/questions
func (h *InterviewHandler) Questions(w http.ResponseWriter, r *http.Request) {
	owner := middleware.GetOwnerID(r.Context())
	id := mux.Vars(r)["id"]

	questions, err := h.interviewSvc.GetAllQuestions(r.Context(), id, owner)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"questions": questions})
}

// CurrentQuestion handles GET /v1/interviews/{id}/question/current
func (h *InterviewHandler) CurrentQuestion(w http.ResponseWriter, r *http.Request) {
	owner := middleware.GetOwnerID(r.Context())
	id := mux.Vars(r)["id"]

	outcome, err := h.interviewSvc.GetCurrentQuestion(r.Context(), id, owner)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// SubmitAnswer handles POST /v1/interviews/{id}/answers
func (h *InterviewHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	owner := middleware.GetOwnerID(r.Context())
	id := mux.Vars(r)["id"]

	var req model.AnswerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.QuestionID == "" {
		writeError(w, http.StatusBadRequest, "questionId is required")
		return
	}

	step, err := h.interviewSvc.Submit(r.Context(), id, owner, req.QuestionID, req.Answer)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, step)
}

// Next handles POST /v1/interviews/{id}/next
func (h *InterviewHandler) Next(w http.ResponseWriter, r *http.Request) {
	owner := middleware.GetOwnerID(r.Context())
	id := mux.Vars(r)["id"]

	step, err := h.interviewSvc.NextStep(r.Context(), id, owner)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, step)
}

// GenerateConclusion handles POST /v1/interviews/{id}/conclusion
func (h *InterviewHandler) GenerateConclusion(w http.ResponseWriter, r *http.Request) {
	owner := middleware.GetOwnerID(r.Context())
	id := mux.Vars(r)["id"]

	conclusion, err := h.interviewSvc.GenerateConclusion(r.Context(), id, owner)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conclusion)
}

// GetConclusion handles GET /v1/interviews/{id}/conclusion
func (h *InterviewHandler) GetConclusion(w http.ResponseWriter, r *http.Request) {
	owner := middleware.GetOwnerID(r.Context())
	id := mux.Vars(r)["id"]

	conclusion, err := h.interviewSvc.GetConclusion(r.Context(), id, owner)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conclusion)
}
