package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wellpath/internal/catalog"
	"wellpath/internal/config"
	"wellpath/internal/model"
	"wellpath/internal/repository"
	"wellpath/internal/service"
	"wellpath/internal/transport/ws"
)

type memInterviews struct {
	mu   sync.Mutex
	docs map[string]model.Interview
	seq  int
}

func (m *memInterviews) Create(_ context.Context, iv *model.Interview) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	iv.ID = fmt.Sprintf("%024x", m.seq)
	iv.Version = 1
	iv.CreatedAt = time.Now().UTC().Add(time.Duration(m.seq) * time.Millisecond)
	iv.UpdatedAt = iv.CreatedAt
	m.docs[iv.ID] = *copyInterview(iv)
	return iv.ID, nil
}

func (m *memInterviews) GetByID(_ context.Context, id string) (*model.Interview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, nil
	}
	return copyInterview(&doc), nil
}

func (m *memInterviews) ListByOwner(_ context.Context, owner string, _ int64) ([]*model.InterviewSummary, error) {
	return m.list(func(d *model.Interview) bool { return d.Owner == owner }), nil
}

func (m *memInterviews) ListByCase(_ context.Context, caseID string) ([]*model.InterviewSummary, error) {
	return m.list(func(d *model.Interview) bool { return d.CaseID == caseID }), nil
}

func (m *memInterviews) list(match func(*model.Interview) bool) []*model.InterviewSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.InterviewSummary{}
	for _, d := range m.docs {
		if match(&d) {
			out = append(out, &model.InterviewSummary{
				ID: d.ID, CaseID: d.CaseID, Status: d.Status, CurrentPath: d.CurrentPath, UpdatedAt: d.UpdatedAt,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

func (m *memInterviews) write(iv *model.Interview, apply func(*model.Interview)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[iv.ID]
	if !ok || doc.Version != iv.Version || doc.Status != model.InterviewActive {
		return repository.ErrVersionConflict
	}
	apply(iv)
	iv.Version++
	m.docs[iv.ID] = *copyInterview(iv)
	return nil
}

func (m *memInterviews) SaveProgress(_ context.Context, iv *model.Interview) error {
	return m.write(iv, func(*model.Interview) {})
}

func (m *memInterviews) AppendQuestion(_ context.Context, iv *model.Interview, q model.QuestionRecord) error {
	return m.write(iv, func(doc *model.Interview) { doc.Questions = append(doc.Questions, q) })
}

func (m *memInterviews) Complete(_ context.Context, iv *model.Interview, result *model.Conclusion) error {
	return m.write(iv, func(doc *model.Interview) {
		doc.Status = model.InterviewCompleted
		doc.Result = result
	})
}

func copyInterview(iv *model.Interview) *model.Interview {
	out := *iv
	out.Questions = model.CloneQuestions(iv.Questions)
	if iv.PendingSets != nil {
		out.PendingSets = map[string][]model.QuestionRecord{}
		for k, v := range iv.PendingSets {
			out.PendingSets[k] = model.CloneQuestions(v)
		}
	}
	return &out
}

type memCases struct {
	mu    sync.Mutex
	cases map[string]model.Case
	seq   int
}

func (m *memCases) Create(_ context.Context, c *model.Case) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	c.ID = fmt.Sprintf("c%023x", m.seq)
	c.Interviews = []string{}
	c.Results = []string{}
	m.cases[c.ID] = *c
	return c.ID, nil
}

func (m *memCases) GetByID(_ context.Context, id string) (*model.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		return nil, nil
	}
	c.Interviews = append([]string{}, c.Interviews...)
	c.Results = append([]string{}, c.Results...)
	return &c, nil
}

func (m *memCases) ListByOwner(_ context.Context, owner string) ([]*model.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Case{}
	for _, c := range m.cases {
		if c.Owner == owner {
			c := c
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *memCases) LinkInterview(_ context.Context, caseID, interviewID string) error {
	return m.update(caseID, func(c *model.Case) { c.Interviews = append(c.Interviews, interviewID) })
}

func (m *memCases) AddResult(_ context.Context, caseID, interviewID string) error {
	return m.update(caseID, func(c *model.Case) { c.Results = append(c.Results, interviewID) })
}

func (m *memCases) Update(_ context.Context, id string, fields repository.CaseFields) error {
	return m.update(id, func(c *model.Case) {
		if fields.Title != nil {
			c.Title = *fields.Title
		}
		if fields.Description != nil {
			c.Description = *fields.Description
		}
	})
}

func (m *memCases) SetStatus(_ context.Context, id string, status model.CaseStatus) error {
	return m.update(id, func(c *model.Case) { c.Status = status })
}

func (m *memCases) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cases, id)
	return nil
}

func (m *memCases) update(id string, apply func(*model.Case)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		return fmt.Errorf("case %s not found", id)
	}
	apply(&c)
	m.cases[id] = c
	return nil
}

// concludingReasoner ends every interview as soon as it is consulted
type concludingReasoner struct {
	fail bool
}

func (r concludingReasoner) NextQuestion(context.Context, []model.TranscriptEntry) (*model.ReasonerStep, error) {
	return &model.ReasonerStep{Conclusion: &model.Conclusion{Summary: "Rest well", Suggestions: []string{"Sleep"}}}, nil
}

func (r concludingReasoner) Conclude(context.Context, []model.TranscriptEntry) (*model.Conclusion, error) {
	if r.fail {
		return nil, fmt.Errorf("upstream down")
	}
	return &model.Conclusion{Summary: "Rest well", Suggestions: []string{"Sleep"}}, nil
}

type testServer struct {
	handler http.Handler
	auth    *service.AuthService
	token   string
}

func newTestServer(t *testing.T, reasoner service.Reasoner) *testServer {
	t.Helper()
	logger := zerolog.New(io.Discard)
	auth := service.NewAuthService("demo", "demo", "test-secret")

	hub := ws.NewHub(logger)
	t.Cleanup(hub.Close)

	cases := &memCases{cases: map[string]model.Case{}}
	store := &memInterviews{docs: map[string]model.Interview{}}
	interviews := service.NewInterviewService(
		store,
		cases,
		catalog.MustDefault(),
		reasoner,
		config.DefaultInterviewConfig(),
		logger,
	)
	interviews.SetBroadcaster(hub)

	h := NewRouter(&Container{
		AuthService:      auth,
		InterviewService: interviews,
		CaseService:      service.NewCaseService(cases, store, logger),
		WSHub:            hub,
		AllowedOrigins:   []string{"http://localhost:3000"},
		Logger:           logger,
	})

	login, err := auth.Login("demo", "demo")
	require.NoError(t, err)
	return &testServer{handler: h, auth: auth, token: login.Token}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(data)
	}
	return s.send(method, path, buf)
}

// doRaw sends body verbatim, for payloads that are not valid JSON
func (s *testServer) doRaw(method, path, body string) *httptest.ResponseRecorder {
	return s.send(method, path, strings.NewReader(body))
}

func (s *testServer) send(method, path string, buf io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, buf)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, concludingReasoner{})
	s.token = ""

	rec := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, concludingReasoner{})
	s.token = ""

	rec := s.do(t, http.MethodPost, "/v1/auth/login", model.LoginRequest{Username: "demo", Password: "demo"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp model.LoginResponse
	decode(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, service.OwnerIDFor("demo"), resp.OwnerID)

	rec = s.do(t, http.MethodPost, "/v1/auth/login", model.LoginRequest{Username: "demo", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOwnerRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, concludingReasoner{})

	s.token = ""
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/v1/interviews", nil).Code)

	s.token = "not-a-jwt"
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/v1/interviews", nil).Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, concludingReasoner{})

	req := httptest.NewRequest(http.MethodOptions, "/v1/interviews", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/v1/interviews", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func answerFor(q *model.QuestionRecord) interface{} {
	switch q.Kind {
	case model.KindSingleChoice:
		return q.Options[0]
	case model.KindMultiChoice:
		return []string{q.Options[0]}
	}
	return "fine"
}

// answerAll answers questions through the answers endpoint until the
// interview leaves the predefined queue and returns the last step.
func (s *testServer) answerAll(t *testing.T, start model.StartResponse) model.StepOutcome {
	t.Helper()
	base := "/v1/interviews/" + start.InterviewID
	q := start.FirstQuestion
	for i := 0; ; i++ {
		require.Less(t, i, 50, "interview never left the predefined queue")
		rec := s.do(t, http.MethodPost, base+"/answers", map[string]interface{}{
			"questionId": q.ID,
			"answer":     answerFor(q),
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var step model.StepOutcome
		decode(t, rec, &step)
		if step.Outcome != model.OutcomePending {
			return step
		}
		q = step.Question
	}
}

func TestInterviewFlow(t *testing.T) {
	s := newTestServer(t, concludingReasoner{})

	rec := s.do(t, http.MethodPost, "/v1/interviews", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var start model.StartResponse
	decode(t, rec, &start)
	require.NotEmpty(t, start.InterviewID)
	require.Equal(t, model.RootQuestionID, start.FirstQuestion.ID)

	base := "/v1/interviews/" + start.InterviewID

	// Answer the whole predefined queue through the answers endpoint
	step := s.answerAll(t, start)
	assert.Equal(t, model.OutcomeComplete, step.Outcome)
	require.NotNil(t, step.Conclusion)
	assert.Equal(t, "Rest well", step.Conclusion.Summary)

	rec = s.do(t, http.MethodGet, base+"/question/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cur model.QuestionOutcome
	decode(t, rec, &cur)
	assert.Equal(t, model.OutcomeComplete, cur.Outcome)

	rec = s.do(t, http.MethodGet, base+"/conclusion", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var c model.Conclusion
	decode(t, rec, &c)
	assert.Equal(t, []string{"Sleep"}, c.Suggestions)

	rec = s.do(t, http.MethodGet, base+"/questions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all struct {
		Questions []model.QuestionRecord `json:"questions"`
	}
	decode(t, rec, &all)
	assert.Equal(t, model.RootQuestionID, all.Questions[0].ID)
	for _, q := range all.Questions {
		assert.True(t, q.Answered(), "question %s left unanswered", q.ID)
	}

	rec = s.do(t, http.MethodPost, base+"/answers", map[string]interface{}{
		"questionId": model.RootQuestionID,
		"answer":     "Feeling Unwell",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/interviews", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Interviews []model.InterviewSummary `json:"interviews"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Interviews, 1)
	assert.Equal(t, model.InterviewCompleted, list.Interviews[0].Status)
}

func TestInterviewErrors(t *testing.T) {
	s := newTestServer(t, concludingReasoner{fail: true})

	rec := s.do(t, http.MethodPost, "/v1/interviews", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var start model.StartResponse
	decode(t, rec, &start)
	base := "/v1/interviews/" + start.InterviewID

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{"invalid choice", http.MethodPost, base + "/answers", map[string]interface{}{"questionId": "q1", "answer": "Maybe"}, http.StatusBadRequest},
		{"list for single choice", http.MethodPost, base + "/answers", map[string]interface{}{"questionId": "q1", "answer": []string{"Feeling Unwell"}}, http.StatusBadRequest},
		{"missing answer", http.MethodPost, base + "/answers", map[string]interface{}{"questionId": "q1"}, http.StatusBadRequest},
		{"missing question id", http.MethodPost, base + "/answers", map[string]interface{}{"answer": "x"}, http.StatusBadRequest},
		{"unknown question", http.MethodPost, base + "/answers", map[string]interface{}{"questionId": "nope", "answer": "x"}, http.StatusNotFound},
		{"unknown interview", http.MethodGet, "/v1/interviews/000000000000000000000000/questions", nil, http.StatusNotFound},
		{"no conclusion yet", http.MethodGet, base + "/conclusion", nil, http.StatusNotFound},
		{"upstream failure", http.MethodPost, base + "/conclusion", nil, http.StatusBadGateway},
		{"unknown case", http.MethodPost, "/v1/interviews", model.StartRequest{CaseID: "missing"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	// Another subject cannot read the interview
	other, err := s.auth.IssueToken(service.OwnerIDFor("mallory"), time.Hour)
	require.NoError(t, err)
	s.token = other
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, base+"/question/current", nil).Code)
}

func TestCases(t *testing.T) {
	s := newTestServer(t, concludingReasoner{})

	rec := s.do(t, http.MethodPost, "/v1/cases", model.CreateCaseRequest{Title: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/cases", model.CreateCaseRequest{Title: "Headaches", Description: "since May"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var c model.Case
	decode(t, rec, &c)
	assert.Equal(t, "Headaches", c.Title)
	assert.Equal(t, model.CaseActive, c.Status)

	rec = s.do(t, http.MethodGet, "/v1/cases/"+c.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/cases", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Cases []model.Case `json:"cases"`
	}
	decode(t, rec, &list)
	assert.Len(t, list.Cases, 1)

	other, err := s.auth.IssueToken(service.OwnerIDFor("mallory"), time.Hour)
	require.NoError(t, err)
	s.token = other
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/v1/cases/"+c.ID, nil).Code)
}

func TestCaseLifecycle(t *testing.T) {
	s := newTestServer(t, concludingReasoner{})

	rec := s.do(t, http.MethodPost, "/v1/cases", model.CreateCaseRequest{Title: "Headaches"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var c model.Case
	decode(t, rec, &c)
	path := "/v1/cases/" + c.ID

	rec = s.do(t, http.MethodPut, path, map[string]string{"title": "Morning headaches"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &c)
	assert.Equal(t, "Morning headaches", c.Title)

	rec = s.do(t, http.MethodPut, path, map[string]string{"title": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	start := func() *httptest.ResponseRecorder {
		return s.do(t, http.MethodPost, "/v1/interviews", model.StartRequest{CaseID: c.ID})
	}

	rec = start()
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var first model.StartResponse
	decode(t, rec, &first)

	rec = s.do(t, http.MethodPost, path+"/close", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &c)
	assert.Equal(t, model.CaseClosed, c.Status)

	rec = start()
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, path+"/reopen", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &c)
	assert.Equal(t, model.CaseActive, c.Status)

	rec = start()
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var second model.StartResponse
	decode(t, rec, &second)

	rec = s.do(t, http.MethodGet, path+"/interviews", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Interviews []model.InterviewSummary `json:"interviews"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Interviews, 2)
	assert.Equal(t, second.InterviewID, list.Interviews[0].ID)
	assert.Equal(t, first.InterviewID, list.Interviews[1].ID)
	assert.Equal(t, c.ID, list.Interviews[0].CaseID)

	// Completing an interview records its result on the case
	step := s.answerAll(t, first)
	require.Equal(t, model.OutcomeComplete, step.Outcome)
	rec = s.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &c)
	assert.Equal(t, []string{first.InterviewID}, c.Results)
	assert.Equal(t, []string{first.InterviewID, second.InterviewID}, c.Interviews)

	owner := s.token
	other, err := s.auth.IssueToken(service.OwnerIDFor("mallory"), time.Hour)
	require.NoError(t, err)
	s.token = other
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, path+"/close", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, path+"/interviews", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodDelete, path, nil).Code)

	s.token = owner
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/v1/cases/missing/reopen", nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, path, nil).Code)
}

func TestMalformedBodies(t *testing.T) {
	s := newTestServer(t, concludingReasoner{})

	rec := s.do(t, http.MethodPost, "/v1/interviews", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var start model.StartResponse
	decode(t, rec, &start)

	rec = s.do(t, http.MethodPost, "/v1/cases", model.CreateCaseRequest{Title: "Cough"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var c model.Case
	decode(t, rec, &c)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/v1/auth/login"},
		{http.MethodPost, "/v1/interviews"},
		{http.MethodPost, "/v1/interviews/" + start.InterviewID + "/answers"},
		{http.MethodPost, "/v1/cases"},
		{http.MethodPut, "/v1/cases/" + c.ID},
	}
	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			rec := s.doRaw(p.method, p.path, `{"questionId": "q1",`)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.JSONEq(t, `{"error":"invalid request body"}`, rec.Body.String())
		})
	}
}
