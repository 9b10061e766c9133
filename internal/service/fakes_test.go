package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"wellpath/internal/cache"
	"wellpath/internal/catalog"
	"wellpath/internal/config"
	"wellpath/internal/model"
	"wellpath/internal/repository"
)

// mockInterviewRepo is an in-memory InterviewRepo with the same
// compare-and-swap semantics as the mongo implementation.
type mockInterviewRepo struct {
	mu      sync.Mutex
	docs    map[string]*model.Interview
	seq     int
	saves   int
	getErr  error
	saveErr error
}

func newMockInterviewRepo() *mockInterviewRepo {
	return &mockInterviewRepo{docs: map[string]*model.Interview{}}
}

func cloneInterview(iv *model.Interview) *model.Interview {
	out := *iv
	out.Questions = model.CloneQuestions(iv.Questions)
	if iv.PendingSets != nil {
		out.PendingSets = make(map[string][]model.QuestionRecord, len(iv.PendingSets))
		for k, v := range iv.PendingSets {
			out.PendingSets[k] = model.CloneQuestions(v)
		}
	}
	return &out
}

func (m *mockInterviewRepo) Create(_ context.Context, iv *model.Interview) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	now := time.Now().UTC().Add(time.Duration(m.seq) * time.Millisecond)
	iv.ID = fmt.Sprintf("%024x", m.seq)
	iv.Version = 1
	iv.CreatedAt = now
	iv.UpdatedAt = now
	m.docs[iv.ID] = cloneInterview(iv)
	return iv.ID, nil
}

func (m *mockInterviewRepo) GetByID(_ context.Context, id string) (*model.Interview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	doc, ok := m.docs[id]
	if !ok {
		return nil, nil
	}
	return cloneInterview(doc), nil
}

func (m *mockInterviewRepo) ListByOwner(_ context.Context, owner string, _ int64) ([]*model.InterviewSummary, error) {
	return m.summaries(func(d *model.Interview) bool { return d.Owner == owner }), nil
}

func (m *mockInterviewRepo) ListByCase(_ context.Context, caseID string) ([]*model.InterviewSummary, error) {
	return m.summaries(func(d *model.Interview) bool { return d.CaseID == caseID }), nil
}

func (m *mockInterviewRepo) summaries(match func(*model.Interview) bool) []*model.InterviewSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.InterviewSummary{}
	for _, d := range m.docs {
		if !match(d) {
			continue
		}
		out = append(out, &model.InterviewSummary{
			ID: d.ID, CaseID: d.CaseID, Status: d.Status, CurrentPath: d.CurrentPath,
			CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// swap must be called with mu held
func (m *mockInterviewRepo) swap(iv *model.Interview, apply func(doc *model.Interview)) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	doc, ok := m.docs[iv.ID]
	if !ok || doc.Version != iv.Version || doc.Status != model.InterviewActive {
		return repository.ErrVersionConflict
	}
	m.saves++
	apply(iv)
	iv.Version++
	iv.UpdatedAt = time.Now().UTC()
	m.docs[iv.ID] = cloneInterview(iv)
	return nil
}

func (m *mockInterviewRepo) SaveProgress(_ context.Context, iv *model.Interview) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.swap(iv, func(*model.Interview) {})
}

func (m *mockInterviewRepo) AppendQuestion(_ context.Context, iv *model.Interview, q model.QuestionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.swap(iv, func(doc *model.Interview) {
		doc.Questions = append(doc.Questions, q)
	})
}

func (m *mockInterviewRepo) Complete(_ context.Context, iv *model.Interview, result *model.Conclusion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.swap(iv, func(doc *model.Interview) {
		doc.Status = model.InterviewCompleted
		doc.Result = result
	})
}

func (m *mockInterviewRepo) stored(t *testing.T, id string) *model.Interview {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	require.True(t, ok, "interview %s not stored", id)
	return cloneInterview(doc)
}

func (m *mockInterviewRepo) put(iv *model.Interview) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[iv.ID] = cloneInterview(iv)
}

type mockCaseRepo struct {
	mu        sync.Mutex
	cases     map[string]*model.Case
	seq       int
	resultErr error
}

func newMockCaseRepo() *mockCaseRepo {
	return &mockCaseRepo{cases: map[string]*model.Case{}}
}

func (m *mockCaseRepo) Create(_ context.Context, c *model.Case) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	c.ID = fmt.Sprintf("c%023x", m.seq)
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	if c.Interviews == nil {
		c.Interviews = []string{}
	}
	cp := *c
	m.cases[c.ID] = &cp
	return c.ID, nil
}

func (m *mockCaseRepo) GetByID(_ context.Context, id string) (*model.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	cp.Interviews = append([]string(nil), c.Interviews...)
	cp.Results = append([]string(nil), c.Results...)
	return &cp, nil
}

func (m *mockCaseRepo) ListByOwner(_ context.Context, owner string) ([]*model.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Case{}
	for _, c := range m.cases {
		if c.Owner == owner {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockCaseRepo) LinkInterview(_ context.Context, caseID, interviewID string) error {
	return m.modify(caseID, func(c *model.Case) error {
		c.Interviews = addUnique(c.Interviews, interviewID)
		return nil
	})
}

func (m *mockCaseRepo) AddResult(_ context.Context, caseID, interviewID string) error {
	return m.modify(caseID, func(c *model.Case) error {
		if m.resultErr != nil {
			return m.resultErr
		}
		c.Results = addUnique(c.Results, interviewID)
		return nil
	})
}

func (m *mockCaseRepo) Update(_ context.Context, id string, fields repository.CaseFields) error {
	return m.modify(id, func(c *model.Case) error {
		if fields.Title != nil {
			c.Title = *fields.Title
		}
		if fields.Description != nil {
			c.Description = *fields.Description
		}
		return nil
	})
}

func (m *mockCaseRepo) SetStatus(_ context.Context, id string, status model.CaseStatus) error {
	return m.modify(id, func(c *model.Case) error {
		c.Status = status
		return nil
	})
}

func (m *mockCaseRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cases, id)
	return nil
}

func (m *mockCaseRepo) modify(id string, apply func(c *model.Case) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		return fmt.Errorf("case %s not found", id)
	}
	if err := apply(c); err != nil {
		return err
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func addUnique(list []string, v string) []string {
	for _, id := range list {
		if id == v {
			return list
		}
	}
	return append(list, v)
}

// mockReasoner records calls and answers with next/conclude, or with a valid
// question and conclusion when those are nil.
type mockReasoner struct {
	mu            sync.Mutex
	nextCalls     int
	concludeCalls int
	next          func(call int, transcript []model.TranscriptEntry) (*model.ReasonerStep, error)
	conclude      func(transcript []model.TranscriptEntry) (*model.Conclusion, error)
}

func (m *mockReasoner) NextQuestion(_ context.Context, transcript []model.TranscriptEntry) (*model.ReasonerStep, error) {
	m.mu.Lock()
	m.nextCalls++
	call := m.nextCalls
	m.mu.Unlock()
	if m.next != nil {
		return m.next(call, transcript)
	}
	return &model.ReasonerStep{Question: &model.QuestionRecord{
		Text:    fmt.Sprintf("Generated question %d?", call),
		Kind:    model.KindSingleChoice,
		Options: []string{"Yes", "No", "Not sure"},
	}}, nil
}

func (m *mockReasoner) Conclude(_ context.Context, transcript []model.TranscriptEntry) (*model.Conclusion, error) {
	m.mu.Lock()
	m.concludeCalls++
	m.mu.Unlock()
	if m.conclude != nil {
		return m.conclude(transcript)
	}
	return &model.Conclusion{
		Summary:     "All good",
		Suggestions: []string{"Drink water"},
		Extended:    map[string]interface{}{"clinicalNotes": "none"},
	}, nil
}

type mockLock struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired int
}

func newMockLock() *mockLock {
	return &mockLock{held: map[string]bool{}}
}

func (l *mockLock) Acquire(_ context.Context, id string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[id] {
		return nil, cache.ErrLockHeld
	}
	l.held[id] = true
	l.acquired++
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, id)
	}, nil
}

type broadcastEvent struct {
	interviewID string
	msgType     string
	payload     interface{}
}

type mockBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (b *mockBroadcaster) BroadcastToInterview(interviewID string, msgType string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcastEvent{interviewID, msgType, payload})
}

type testEnv struct {
	svc         *InterviewService
	repo        *mockInterviewRepo
	cases       *mockCaseRepo
	reasoner    *mockReasoner
	broadcaster *mockBroadcaster
	catalog     *catalog.Catalog
}

func newTestEnv(t *testing.T, cfg config.InterviewConfig) *testEnv {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	env := &testEnv{
		repo:        newMockInterviewRepo(),
		cases:       newMockCaseRepo(),
		reasoner:    &mockReasoner{},
		broadcaster: &mockBroadcaster{},
		catalog:     cat,
	}
	env.svc = NewInterviewService(env.repo, env.cases, cat, env.reasoner, cfg, zerolog.New(io.Discard))
	env.svc.SetBroadcaster(env.broadcaster)
	return env
}

// validAnswer picks an answer the validator accepts for q
func validAnswer(q *model.QuestionRecord) *model.Answer {
	switch q.Kind {
	case model.KindSingleChoice:
		return model.TextAnswer(q.Options[0])
	case model.KindMultiChoice:
		return model.ChoicesAnswer(q.Options[0])
	}
	return model.TextAnswer("some text")
}

// answerPending answers current questions until the queue is exhausted and
// returns how many were answered.
func (e *testEnv) answerPending(t *testing.T, id, owner string) int {
	t.Helper()
	ctx := context.Background()
	n := 0
	for {
		cur, err := e.svc.GetCurrentQuestion(ctx, id, owner)
		require.NoError(t, err)
		if cur.Outcome != model.OutcomePending {
			return n
		}
		require.NoError(t, e.svc.RecordAnswer(ctx, id, owner, cur.Question.ID, validAnswer(cur.Question)))
		n++
	}
}
